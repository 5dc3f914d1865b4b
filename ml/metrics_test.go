package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreMetrics(t *testing.T) {
	m := scoreMetrics([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}, Metrics{TestSize: 4})

	assert.Equal(t, [2][2]int{{1, 1}, {0, 2}}, m.Confusion)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-12)

	assert.InDelta(t, 1.0, m.Benign.Precision, 1e-12)
	assert.InDelta(t, 0.5, m.Benign.Recall, 1e-12)
	assert.Equal(t, 2, m.Benign.Support)

	assert.InDelta(t, 2.0/3.0, m.Malignant.Precision, 1e-12)
	assert.InDelta(t, 1.0, m.Malignant.Recall, 1e-12)
	assert.InDelta(t, 0.8, m.Malignant.F1, 1e-12)
	assert.Equal(t, 4, m.MacroAvg.Support)
}

func TestEvaluateEmpty(t *testing.T) {
	m := Evaluate(fixedClassifier{p: 0.9}, nil, nil)
	assert.Equal(t, 0, m.TestSize)
	assert.Equal(t, 0.0, m.Accuracy)
}

func TestMetricsReport(t *testing.T) {
	m := Evaluate(fixedClassifier{p: 0.9}, [][]float64{{0}, {0}}, []int{1, 0})
	assert.InDelta(t, 0.5, m.Accuracy, 1e-12)
	report := m.Report()
	assert.Contains(t, report, "accuracy: 0.5000")
	assert.Contains(t, report, "malignant")
	assert.Contains(t, report, "weighted avg")
}
