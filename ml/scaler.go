package ml

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"cytodx/errdefs"
)

// Scaler standardizes features with per-column mean and population standard deviation.
// It is immutable once fitted.
type Scaler struct {
	mean []float64
	std  []float64
}

// FitScaler computes scaling parameters over the rows of X.
func FitScaler(X [][]float64) (*Scaler, error) {
	if len(X) < 2 {
		return nil, fmt.Errorf("%w: scaler needs at least 2 rows, got %d", errdefs.ErrInsufficientData, len(X))
	}
	cols := len(X[0])
	if cols == 0 {
		return nil, fmt.Errorf("%w: rows have no features", errdefs.ErrSchema)
	}
	n := float64(len(X))
	s := &Scaler{mean: make([]float64, cols), std: make([]float64, cols)}
	column := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		constant := true
		for i, row := range X {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: row %d has %d features, want %d", errdefs.ErrSchema, i, len(row), cols)
			}
			column[i] = row[j]
			if row[j] != X[0][j] {
				constant = false
			}
		}
		if constant {
			// Summation error would otherwise leave a tiny non-zero spread.
			s.mean[j] = X[0][j]
			s.std[j] = 0
			continue
		}
		mean, variance := stat.MeanVariance(column, nil)
		s.mean[j] = mean
		s.std[j] = math.Sqrt(variance * (n - 1) / n)
	}
	return s, nil
}

func (s *Scaler) FeatureCount() int { return len(s.mean) }

// Mean returns a copy of the per-feature means.
func (s *Scaler) Mean() []float64 { return append([]float64(nil), s.mean...) }

// Std returns a copy of the per-feature standard deviations.
func (s *Scaler) Std() []float64 { return append([]float64(nil), s.std...) }

// Transform returns (x-mean)/std per feature. Constant features map to 0.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.mean) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", errdefs.ErrInvalidInput, len(s.mean), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		if s.std[j] == 0 {
			out[j] = 0
			continue
		}
		out[j] = (v - s.mean[j]) / s.std[j]
	}
	return out, nil
}

func (s *Scaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// Inverse maps standardized values back to the original scale.
func (s *Scaler) Inverse(y []float64) ([]float64, error) {
	if len(y) != len(s.mean) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", errdefs.ErrInvalidInput, len(s.mean), len(y))
	}
	out := make([]float64, len(y))
	for j, v := range y {
		out[j] = v*s.std[j] + s.mean[j]
	}
	return out, nil
}

type scalerJSON struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *Scaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(scalerJSON{Mean: s.mean, Std: s.std})
}

func (s *Scaler) UnmarshalJSON(data []byte) error {
	var raw scalerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Mean) == 0 || len(raw.Mean) != len(raw.Std) {
		return fmt.Errorf("%w: scaler has %d means and %d deviations", errdefs.ErrArtifactCorrupt, len(raw.Mean), len(raw.Std))
	}
	for j := range raw.Mean {
		if math.IsNaN(raw.Mean[j]) || math.IsInf(raw.Mean[j], 0) {
			return fmt.Errorf("%w: scaler mean %d is not finite", errdefs.ErrArtifactCorrupt, j)
		}
		if math.IsNaN(raw.Std[j]) || math.IsInf(raw.Std[j], 0) || raw.Std[j] < 0 {
			return fmt.Errorf("%w: scaler std %d is invalid", errdefs.ErrArtifactCorrupt, j)
		}
	}
	s.mean = raw.Mean
	s.std = raw.Std
	return nil
}
