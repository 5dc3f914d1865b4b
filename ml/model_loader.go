package ml

import (
	"encoding/json"
	"fmt"

	"cytodx/errdefs"
)

// NewClassifier returns an untrained classifier for cfg.Algorithm.
func NewClassifier(cfg TrainConfig) (Classifier, error) {
	switch cfg.Algorithm {
	case AlgorithmLinear:
		return NewLogisticRegression(cfg.Linear), nil
	case AlgorithmEnsemble:
		return NewRandomForest(cfg.Ensemble, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", errdefs.ErrInvalidConfig, cfg.Algorithm)
	}
}

// DecodeClassifier rebuilds a fitted classifier from its JSON payload and checks its
// internal shape.
func DecodeClassifier(alg Algorithm, payload []byte) (Classifier, error) {
	switch alg {
	case AlgorithmLinear:
		model := &LogisticRegression{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, fmt.Errorf("%w: decode linear model: %v", errdefs.ErrArtifactCorrupt, err)
		}
		if err := model.validate(); err != nil {
			return nil, err
		}
		return model, nil
	case AlgorithmEnsemble:
		model := &RandomForest{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, fmt.Errorf("%w: decode ensemble model: %v", errdefs.ErrArtifactCorrupt, err)
		}
		if err := model.validate(); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model kind %q", errdefs.ErrArtifactCorrupt, alg)
	}
}
