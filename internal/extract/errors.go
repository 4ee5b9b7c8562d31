// internal/extract/errors.go
package extract

import "errors"

var (
	// ErrMissingKey is returned when an extract lacks a key a stage depends on.
	ErrMissingKey = errors.New("extract key not found")
	// ErrInvalidValue is returned when an extract key holds a value of the wrong type.
	ErrInvalidValue = errors.New("extract value has unexpected type")

	ErrUnsupportedInputColumn = errors.New("invalid type for batched input column")
	ErrModelNotFound          = errors.New("model not found")
	ErrMissingFeature         = errors.New("model requires feature not available in input")
	ErrShapeMismatch          = errors.New("shape mismatch")
	ErrDTypeMismatch          = errors.New("dtype mismatch")
	ErrRowCountMismatch       = errors.New("did not get the expected number of results")
	ErrInferenceFailed        = errors.New("inference failed")
	ErrResultsMissing         = errors.New("unable to find files containing inference result")
)
