package ml

import (
	"fmt"
	"strings"

	"cytodx/errdefs"
)

// Algorithm names a classifier family.
type Algorithm string

const (
	AlgorithmLinear   Algorithm = "linear"
	AlgorithmEnsemble Algorithm = "ensemble"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmLinear, "logistic", "logistic_regression":
		return AlgorithmLinear, nil
	case AlgorithmEnsemble, "random_forest", "forest":
		return AlgorithmEnsemble, nil
	default:
		return "", fmt.Errorf("%w: unknown algorithm %q", errdefs.ErrInvalidConfig, s)
	}
}

// Classifier maps a scaled feature vector to the probability of the malignant class.
// Both algorithms satisfy it, so training and serving never branch on the algorithm.
type Classifier interface {
	Algorithm() Algorithm
	FeatureCount() int
	Fit(features [][]float64, labels []int) error
	PredictProba(features []float64) (float64, error)
}

// Predict thresholds PredictProba. Exact ties resolve to benign.
func Predict(model Classifier, features []float64) (int, float64, error) {
	p, err := model.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if p > 0.5 {
		return 1, p, nil
	}
	return 0, p, nil
}

func checkTrainingSet(features [][]float64, labels []int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, fmt.Errorf("%w: features or labels empty", errdefs.ErrEmptyDataset)
	}
	if len(features) != len(labels) {
		return 0, fmt.Errorf("%w: %d feature rows, %d labels", errdefs.ErrSchema, len(features), len(labels))
	}
	width := len(features[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: feature rows are empty", errdefs.ErrSchema)
	}
	for i, row := range features {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", errdefs.ErrSchema, i, len(row), width)
		}
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return 0, fmt.Errorf("%w: label %d at row %d", errdefs.ErrSchema, label, i)
		}
	}
	return width, nil
}
