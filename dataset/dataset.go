// Package dataset loads the headerless cytology measurement file into labelled feature
// vectors under an explicit column schema.
package dataset

// Record is one tissue sample. The source identifier is not kept.
type Record struct {
	Label    Diagnosis
	Features []float64
}

type Dataset struct {
	Schema  *Schema
	Records []Record
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Matrix returns the feature rows and integer labels. Rows share memory with the records.
func (d *Dataset) Matrix() ([][]float64, []int) {
	X := make([][]float64, len(d.Records))
	y := make([]int, len(d.Records))
	for i, rec := range d.Records {
		X[i] = rec.Features
		y[i] = int(rec.Label)
	}
	return X, y
}

// Labels returns the label codes in record order.
func (d *Dataset) Labels() []int {
	_, y := d.Matrix()
	return y
}

// Counts returns the number of benign and malignant records.
func (d *Dataset) Counts() (benign, malignant int) {
	for _, rec := range d.Records {
		if rec.Label == Malignant {
			malignant++
		} else {
			benign++
		}
	}
	return benign, malignant
}
