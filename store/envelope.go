package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"cytodx/errdefs"
	"cytodx/ml"
)

const (
	modelFormat   = "cytodx/model"
	scalerFormat  = "cytodx/scaler"
	schemaVersion = 1

	scalerKind = "standard"
)

// envelope wraps each persisted half so a reader can reject foreign, stale or mismatched files
// before touching the payload.
type envelope struct {
	Format        string          `json:"format"`
	SchemaVersion int             `json:"schema_version"`
	Version       string          `json:"version"`
	Kind          string          `json:"kind"`
	FeatureCount  int             `json:"feature_count"`
	CreatedAt     time.Time       `json:"created_at"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func encodeModel(version string, createdAt time.Time, model ml.Classifier, meta Metadata) ([]byte, error) {
	payload, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return json.MarshalIndent(envelope{
		Format:        modelFormat,
		SchemaVersion: schemaVersion,
		Version:       version,
		Kind:          string(model.Algorithm()),
		FeatureCount:  model.FeatureCount(),
		CreatedAt:     createdAt,
		Metadata:      &meta,
		Payload:       payload,
	}, "", "  ")
}

func encodeScaler(version string, createdAt time.Time, scaler *ml.Scaler) ([]byte, error) {
	payload, err := json.Marshal(scaler)
	if err != nil {
		return nil, fmt.Errorf("encode scaler: %w", err)
	}
	return json.MarshalIndent(envelope{
		Format:        scalerFormat,
		SchemaVersion: schemaVersion,
		Version:       version,
		Kind:          scalerKind,
		FeatureCount:  scaler.FeatureCount(),
		CreatedAt:     createdAt,
		Payload:       payload,
	}, "", "  ")
}

// readEnvelope loads path and checks its format tag, schema version and version id.
func readEnvelope(path, format, version string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errdefs.ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrArtifactCorrupt, path, err)
	}
	switch {
	case env.Format != format:
		return nil, fmt.Errorf("%w: %s has format %q, want %q", errdefs.ErrArtifactCorrupt, path, env.Format, format)
	case env.SchemaVersion != schemaVersion:
		return nil, fmt.Errorf("%w: %s has unsupported schema version %d", errdefs.ErrArtifactCorrupt, path, env.SchemaVersion)
	case env.Version != version:
		return nil, fmt.Errorf("%w: %s belongs to version %q, want %q", errdefs.ErrArtifactCorrupt, path, env.Version, version)
	case len(env.Payload) == 0:
		return nil, fmt.Errorf("%w: %s has no payload", errdefs.ErrArtifactCorrupt, path)
	}
	return &env, nil
}

func decodeModel(env *envelope) (ml.Classifier, error) {
	model, err := ml.DecodeClassifier(ml.Algorithm(env.Kind), env.Payload)
	if err != nil {
		return nil, err
	}
	if model.FeatureCount() != env.FeatureCount {
		return nil, fmt.Errorf("%w: model declares %d features, payload has %d", errdefs.ErrArtifactCorrupt, env.FeatureCount, model.FeatureCount())
	}
	return model, nil
}

func decodeScaler(env *envelope) (*ml.Scaler, error) {
	if env.Kind != scalerKind {
		return nil, fmt.Errorf("%w: unsupported scaler kind %q", errdefs.ErrArtifactCorrupt, env.Kind)
	}
	scaler := &ml.Scaler{}
	if err := json.Unmarshal(env.Payload, scaler); err != nil {
		if errors.Is(err, errdefs.ErrArtifactCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: decode scaler: %v", errdefs.ErrArtifactCorrupt, err)
	}
	if scaler.FeatureCount() != env.FeatureCount {
		return nil, fmt.Errorf("%w: scaler declares %d features, payload has %d", errdefs.ErrArtifactCorrupt, env.FeatureCount, scaler.FeatureCount())
	}
	return scaler, nil
}
