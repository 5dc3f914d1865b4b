// Package errdefs holds the error kinds shared by the loader, trainer, store and
// prediction service. Callers wrap them with context and match with errors.Is.
package errdefs

import "errors"

var (
	// ErrNotFound: the input source does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSchema: structural mismatch such as a wrong column count or a missing label.
	ErrSchema = errors.New("schema error")
	// ErrParse: a malformed row or a non-numeric value.
	ErrParse = errors.New("parse error")
	// ErrInsufficientData: too few records to fit.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrEmptyDataset: a dataset with zero records.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrArtifactNotFound: either half of the artifact pair is absent.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactCorrupt: deserialization failed or model and scaler do not fit together.
	ErrArtifactCorrupt = errors.New("artifact corrupt")
	// ErrInvalidInput: a malformed prediction request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig: training or service configuration out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
