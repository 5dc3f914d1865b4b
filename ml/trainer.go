package ml

import (
	"fmt"

	"cytodx/dataset"
	"cytodx/errdefs"
)

type TrainConfig struct {
	Algorithm     Algorithm      `json:"algorithm"`
	SplitFraction float64        `json:"split_fraction"`
	Seed          int64          `json:"seed"`
	Linear        LinearParams   `json:"linear"`
	Ensemble      EnsembleParams `json:"ensemble"`
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Algorithm:     AlgorithmLinear,
		SplitFraction: 0.2,
		Seed:          42,
		Linear:        DefaultLinearParams(),
		Ensemble:      DefaultEnsembleParams(),
	}
}

func (c TrainConfig) Validate() error {
	if c.Algorithm != AlgorithmLinear && c.Algorithm != AlgorithmEnsemble {
		return fmt.Errorf("%w: unknown algorithm %q", errdefs.ErrInvalidConfig, c.Algorithm)
	}
	if !(c.SplitFraction > 0 && c.SplitFraction < 1) {
		return fmt.Errorf("%w: split fraction %v outside (0,1)", errdefs.ErrInvalidConfig, c.SplitFraction)
	}
	return nil
}

type TrainResult struct {
	Model   Classifier
	Scaler  *Scaler
	Metrics Metrics
	Split   Split
}

// Train splits ds, fits the scaler on the training rows only, fits the classifier on the
// scaled training rows and scores the scaled held-out rows. A weak model is still returned.
func Train(ds *dataset.Dataset, cfg TrainConfig) (*TrainResult, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("%w: no records to train on", errdefs.ErrEmptyDataset)
	}
	if ds.Schema == nil || !ds.Schema.HasLabel() {
		return nil, fmt.Errorf("%w: dataset has no label column", errdefs.ErrSchema)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	split, err := NewSplit(ds.Len(), cfg.SplitFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}
	return TrainSplit(ds, cfg, split)
}

// TrainSplit is Train over a caller-chosen partition, such as one cross-validation fold.
func TrainSplit(ds *dataset.Dataset, cfg TrainConfig, split Split) (*TrainResult, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("%w: no records to train on", errdefs.ErrEmptyDataset)
	}
	if ds.Schema == nil || !ds.Schema.HasLabel() {
		return nil, fmt.Errorf("%w: dataset has no label column", errdefs.ErrSchema)
	}
	if len(split.Train) == 0 || len(split.Test) == 0 {
		return nil, fmt.Errorf("%w: split needs training and held-out rows", errdefs.ErrInsufficientData)
	}
	features, labels := ds.Matrix()
	for _, idx := range append(append([]int(nil), split.Train...), split.Test...) {
		if idx < 0 || idx >= len(features) {
			return nil, fmt.Errorf("%w: split row %d out of range", errdefs.ErrInvalidConfig, idx)
		}
	}
	trainX, trainY := selectRows(features, labels, split.Train)
	testX, testY := selectRows(features, labels, split.Test)

	scaler, err := FitScaler(trainX)
	if err != nil {
		return nil, err
	}
	scaledTrain, err := scaler.TransformAll(trainX)
	if err != nil {
		return nil, err
	}
	scaledTest, err := scaler.TransformAll(testX)
	if err != nil {
		return nil, err
	}

	model, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(scaledTrain, trainY); err != nil {
		return nil, fmt.Errorf("fit %s model: %w", cfg.Algorithm, err)
	}

	metrics := Evaluate(model, scaledTest, testY)
	metrics.TrainSize = len(trainX)
	return &TrainResult{
		Model:   model,
		Scaler:  scaler,
		Metrics: metrics,
		Split:   split,
	}, nil
}
