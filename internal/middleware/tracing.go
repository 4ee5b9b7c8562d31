// internal/middleware/tracing.go
package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/pipeline"
)

const tracerName = "github.com/SyedDaiam9101/model-evaluator/internal/middleware"

// Tracing wraps every stage call in a span named after the stage. A nil
// provider uses the global one.
func Tracing(tp trace.TracerProvider) pipeline.Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(next pipeline.Extractor) pipeline.Extractor {
		return pipeline.Func{
			Name: next.StageName(),
			Fn: func(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
				ctx, span := tracer.Start(ctx, next.StageName())
				defer span.End()

				if id := GetBatchID(ctx); id != "" {
					span.SetAttributes(attribute.String("batch.id", id))
				}

				out, err := next.Extract(ctx, in)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, ErrorCode(err))
				}
				return out, err
			},
		}
	}
}
