package serving

import (
	"fmt"

	"cytodx/errdefs"
)

// Request is the wire form of a prediction request: either an ordered feature vector or
// features keyed by name, never both.
type Request struct {
	Features []float64          `json:"features,omitempty"`
	Named    map[string]float64 `json:"named,omitempty"`
}

// Serve dispatches req to Predict or PredictNamed.
func (p *Predictor) Serve(req Request) (Prediction, error) {
	switch {
	case req.Features != nil && req.Named != nil:
		return Prediction{}, fmt.Errorf("%w: send either features or named, not both", errdefs.ErrInvalidInput)
	case req.Named != nil:
		return p.PredictNamed(req.Named)
	case req.Features != nil:
		return p.Predict(req.Features)
	default:
		return Prediction{}, fmt.Errorf("%w: request has no features", errdefs.ErrInvalidInput)
	}
}
