package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"cytodx/errdefs"
)

type LinearParams struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Epochs       int     `json:"epochs" yaml:"epochs"`
	L2           float64 `json:"l2" yaml:"l2"`
}

func DefaultLinearParams() LinearParams {
	return LinearParams{LearningRate: 0.1, Epochs: 1000, L2: 1e-3}
}

// LogisticRegression is a binary L2-regularised logistic model trained by full-batch
// gradient descent from zero weights, so a fit is fully deterministic.
type LogisticRegression struct {
	Weights []float64    `json:"weights"`
	Bias    float64      `json:"bias"`
	Params  LinearParams `json:"params"`
}

func NewLogisticRegression(params LinearParams) *LogisticRegression {
	defaults := DefaultLinearParams()
	if params.LearningRate <= 0 {
		params.LearningRate = defaults.LearningRate
	}
	if params.Epochs <= 0 {
		params.Epochs = defaults.Epochs
	}
	if params.L2 < 0 {
		params.L2 = defaults.L2
	}
	return &LogisticRegression{Params: params}
}

func (m *LogisticRegression) Algorithm() Algorithm { return AlgorithmLinear }

func (m *LogisticRegression) FeatureCount() int { return len(m.Weights) }

func (m *LogisticRegression) Fit(features [][]float64, labels []int) error {
	width, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}
	n := float64(len(features))
	w := make([]float64, width)
	b := 0.0
	gradW := make([]float64, width)

	for epoch := 0; epoch < m.Params.Epochs; epoch++ {
		for j := range gradW {
			gradW[j] = 0
		}
		gradB := 0.0
		for i, row := range features {
			residual := sigmoid(floats.Dot(w, row)+b) - float64(labels[i])
			floats.AddScaled(gradW, residual, row)
			gradB += residual
		}
		for j := range w {
			w[j] -= m.Params.LearningRate * (gradW[j]/n + m.Params.L2*w[j])
		}
		b -= m.Params.LearningRate * gradB / n
	}

	m.Weights = w
	m.Bias = b
	return nil
}

func (m *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, fmt.Errorf("model not trained")
	}
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", errdefs.ErrInvalidInput, len(m.Weights), len(features))
	}
	return sigmoid(floats.Dot(m.Weights, features) + m.Bias), nil
}

func (m *LogisticRegression) validate() error {
	if len(m.Weights) == 0 {
		return fmt.Errorf("%w: logistic model has no weights", errdefs.ErrArtifactCorrupt)
	}
	for j, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %d is not finite", errdefs.ErrArtifactCorrupt, j)
		}
	}
	if math.IsNaN(m.Bias) || math.IsInf(m.Bias, 0) {
		return fmt.Errorf("%w: bias is not finite", errdefs.ErrArtifactCorrupt)
	}
	return nil
}

// sigmoid avoids overflow of exp for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
