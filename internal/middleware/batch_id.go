// internal/middleware/batch_id.go
package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/pipeline"
)

// batchIDKey is the context key for storing the batch ID
type batchIDKey struct{}

// WithBatchID returns a context carrying id.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// GetBatchID retrieves the batch ID from the context
func GetBatchID(ctx context.Context) string {
	if id, ok := ctx.Value(batchIDKey{}).(string); ok {
		return id
	}
	return ""
}

// BatchID makes sure every stage call carries a batch ID. An ID already in the
// context is kept, otherwise a new UUID is generated.
func BatchID() pipeline.Middleware {
	return func(next pipeline.Extractor) pipeline.Extractor {
		return pipeline.Func{
			Name: next.StageName(),
			Fn: func(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
				if GetBatchID(ctx) == "" {
					ctx = WithBatchID(ctx, uuid.New().String())
				}
				return next.Extract(ctx, in)
			},
		}
	}
}
