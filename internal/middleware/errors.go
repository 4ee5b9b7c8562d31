// internal/middleware/errors.go
package middleware

import (
	"context"
	"errors"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
)

// ErrorCode maps a stage error to the code label used in metrics and logs.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, extract.ErrModelNotFound):
		return "NotFound"
	case errors.Is(err, extract.ErrMissingKey),
		errors.Is(err, extract.ErrInvalidValue):
		return "FailedPrecondition"
	case errors.Is(err, extract.ErrUnsupportedInputColumn),
		errors.Is(err, extract.ErrMissingFeature),
		errors.Is(err, extract.ErrShapeMismatch),
		errors.Is(err, extract.ErrDTypeMismatch):
		return "InvalidArgument"
	case errors.Is(err, extract.ErrInferenceFailed),
		errors.Is(err, extract.ErrResultsMissing),
		errors.Is(err, extract.ErrRowCountMismatch):
		return "Internal"
	}
	return "Unknown"
}
