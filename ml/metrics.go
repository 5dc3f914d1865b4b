package ml

import (
	"fmt"
	"strings"
)

// ClassMetrics is one row of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type Metrics struct {
	Accuracy  float64      `json:"accuracy"`
	Benign    ClassMetrics `json:"benign"`
	Malignant ClassMetrics `json:"malignant"`
	MacroAvg  ClassMetrics `json:"macro_avg"`
	Weighted  ClassMetrics `json:"weighted_avg"`
	// Confusion is indexed [actual][predicted].
	Confusion [2][2]int `json:"confusion"`
	TrainSize int       `json:"train_size"`
	TestSize  int       `json:"test_size"`
}

// Evaluate scores model on already-scaled rows. Rows the model rejects count as wrong.
func Evaluate(model Classifier, features [][]float64, labels []int) Metrics {
	var m Metrics
	m.TestSize = len(features)
	if len(features) == 0 {
		return m
	}

	predicted := make([]int, len(features))
	for i, row := range features {
		label, _, err := Predict(model, row)
		if err != nil {
			label = 1 - labels[i]
		}
		predicted[i] = label
	}
	return scoreMetrics(labels, predicted, m)
}

func scoreMetrics(actual, predicted []int, m Metrics) Metrics {
	correct := 0
	for i := range actual {
		m.Confusion[actual[i]][predicted[i]]++
		if actual[i] == predicted[i] {
			correct++
		}
	}
	m.Accuracy = float64(correct) / float64(len(actual))
	m.Benign = classMetrics(m.Confusion, 0)
	m.Malignant = classMetrics(m.Confusion, 1)

	total := float64(m.Benign.Support + m.Malignant.Support)
	m.MacroAvg = ClassMetrics{
		Precision: (m.Benign.Precision + m.Malignant.Precision) / 2,
		Recall:    (m.Benign.Recall + m.Malignant.Recall) / 2,
		F1:        (m.Benign.F1 + m.Malignant.F1) / 2,
		Support:   len(actual),
	}
	wb := float64(m.Benign.Support) / total
	wm := float64(m.Malignant.Support) / total
	m.Weighted = ClassMetrics{
		Precision: wb*m.Benign.Precision + wm*m.Malignant.Precision,
		Recall:    wb*m.Benign.Recall + wm*m.Malignant.Recall,
		F1:        wb*m.Benign.F1 + wm*m.Malignant.F1,
		Support:   len(actual),
	}
	return m
}

func classMetrics(confusion [2][2]int, class int) ClassMetrics {
	other := 1 - class
	tp := confusion[class][class]
	fp := confusion[other][class]
	fn := confusion[class][other]

	var cm ClassMetrics
	cm.Support = tp + fn
	if tp+fp > 0 {
		cm.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		cm.Recall = float64(tp) / float64(tp+fn)
	}
	if cm.Precision+cm.Recall > 0 {
		cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
	}
	return cm
}

// Report renders the metrics as a plain-text classification report.
func (m Metrics) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "accuracy: %.4f (train=%d test=%d)\n\n", m.Accuracy, m.TrainSize, m.TestSize)
	fmt.Fprintf(&b, "%-14s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	rows := []struct {
		name string
		cm   ClassMetrics
	}{
		{"benign", m.Benign},
		{"malignant", m.Malignant},
		{"macro avg", m.MacroAvg},
		{"weighted avg", m.Weighted},
	}
	for i, row := range rows {
		if i == 2 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-14s %9.2f %9.2f %9.2f %9d\n", row.name, row.cm.Precision, row.cm.Recall, row.cm.F1, row.cm.Support)
	}
	return b.String()
}
