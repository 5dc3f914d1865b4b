// Package serving turns a persisted artifact pair into predictions and keeps track of which
// pair is current.
package serving

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/ml"
	"cytodx/store"
)

type Prediction struct {
	Label      dataset.Diagnosis `json:"label"`
	PBenign    float64           `json:"p_benign"`
	PMalignant float64           `json:"p_malignant"`
	Version    string            `json:"version"`
}

// Predictor is read-only after construction and safe for concurrent use.
type Predictor struct {
	version   string
	createdAt time.Time
	meta      store.Metadata
	model     ml.Classifier
	scaler    *ml.Scaler
	index     map[string]int
}

func NewPredictor(pair *store.Pair) (*Predictor, error) {
	if pair == nil || pair.Model == nil || pair.Scaler == nil {
		return nil, errors.New("predictor needs a complete artifact pair")
	}
	if pair.Scaler.FeatureCount() != dataset.FeatureCount || pair.Model.FeatureCount() != dataset.FeatureCount {
		return nil, fmt.Errorf("%w: pair %s expects %d/%d features, want %d", errdefs.ErrArtifactCorrupt,
			pair.Version, pair.Model.FeatureCount(), pair.Scaler.FeatureCount(), dataset.FeatureCount)
	}
	return &Predictor{
		version:   pair.Version,
		createdAt: pair.CreatedAt,
		meta:      pair.Metadata,
		model:     pair.Model,
		scaler:    pair.Scaler,
		index:     dataset.DefaultSchema().FeatureIndex(),
	}, nil
}

func (p *Predictor) Version() string          { return p.version }
func (p *Predictor) CreatedAt() time.Time     { return p.createdAt }
func (p *Predictor) Metadata() store.Metadata { return p.meta }

// Predict scales features and scores them. The label is malignant only when its probability
// is strictly greater than the benign one.
func (p *Predictor) Predict(features []float64) (Prediction, error) {
	if len(features) != dataset.FeatureCount {
		return Prediction{}, fmt.Errorf("%w: expected %d features, got %d", errdefs.ErrInvalidInput, dataset.FeatureCount, len(features))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%w: feature %d is not finite", errdefs.ErrInvalidInput, i)
		}
	}
	scaled, err := p.scaler.Transform(features)
	if err != nil {
		return Prediction{}, err
	}
	for i, v := range scaled {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%w: feature %d is out of range for model %s", errdefs.ErrInvalidInput, i, p.version)
		}
	}
	pm, err := p.model.PredictProba(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict with %s: %w", p.version, err)
	}
	// Loaded artifacts carry finite parameters, so a NaN here comes from overflow on the input.
	if math.IsNaN(pm) {
		return Prediction{}, fmt.Errorf("%w: features overflow model %s", errdefs.ErrInvalidInput, p.version)
	}
	pred := Prediction{
		Label:      dataset.Benign,
		PBenign:    1 - pm,
		PMalignant: pm,
		Version:    p.version,
	}
	if pred.PMalignant > pred.PBenign {
		pred.Label = dataset.Malignant
	}
	return pred, nil
}

// PredictNamed accepts features keyed by column name in any order. Every feature must be
// present and no other names are allowed.
func (p *Predictor) PredictNamed(named map[string]float64) (Prediction, error) {
	features := make([]float64, dataset.FeatureCount)
	var unknown []string
	for name, v := range named {
		i, ok := p.index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		features[i] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Prediction{}, fmt.Errorf("%w: unknown features %v", errdefs.ErrInvalidInput, unknown)
	}
	if len(named) != len(p.index) {
		var missing []string
		for name := range p.index {
			if _, ok := named[name]; !ok {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		return Prediction{}, fmt.Errorf("%w: missing features %v", errdefs.ErrInvalidInput, missing)
	}
	return p.Predict(features)
}
