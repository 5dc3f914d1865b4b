// Package tuning scores training configurations by k-fold cross-validation and searches
// hyperparameter grids for the best one.
package tuning

import (
	"context"
	"fmt"
	"math"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/ml"
)

// Metric selects the fold score a search maximizes.
type Metric string

const (
	MetricAccuracy    Metric = "accuracy"
	MetricMalignantF1 Metric = "malignant_f1"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricAccuracy, MetricMalignantF1:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", errdefs.ErrInvalidConfig, s)
	}
}

func (m Metric) score(metrics ml.Metrics) float64 {
	if m == MetricMalignantF1 {
		return metrics.Malignant.F1
	}
	return metrics.Accuracy
}

// Score summarizes one configuration across folds.
type Score struct {
	Mean   float64   `json:"mean"`
	StdErr float64   `json:"std_err"`
	Folds  []float64 `json:"folds"`
}

// CrossValidate trains cfg once per fold. Every fold fits its own scaler on its own
// training rows. The fold assignment depends only on seed.
func CrossValidate(ctx context.Context, ds *dataset.Dataset, cfg ml.TrainConfig, folds int, seed int64, metric Metric) (Score, error) {
	splits, err := ml.KFold(ds.Len(), folds, seed)
	if err != nil {
		return Score{}, err
	}
	scores := make([]float64, 0, len(splits))
	for i, split := range splits {
		if err := ctx.Err(); err != nil {
			return Score{}, err
		}
		res, err := ml.TrainSplit(ds, cfg, split)
		if err != nil {
			return Score{}, fmt.Errorf("fold %d: %w", i+1, err)
		}
		scores = append(scores, metric.score(res.Metrics))
	}
	return summarize(scores), nil
}

func summarize(scores []float64) Score {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	n := float64(len(scores))
	mean := sum / n
	var ss float64
	for _, s := range scores {
		ss += (s - mean) * (s - mean)
	}
	var stderr float64
	if len(scores) > 1 {
		stderr = math.Sqrt(ss/(n-1)) / math.Sqrt(n)
	}
	return Score{Mean: mean, StdErr: stderr, Folds: scores}
}
