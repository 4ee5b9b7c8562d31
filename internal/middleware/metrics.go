// internal/middleware/metrics.go
package middleware

import (
	"context"
	"time"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/pipeline"
)

// Metrics records Prometheus histogram metrics for every stage call.
// It measures the duration of each call and records it with stage and code labels.
func Metrics() pipeline.Middleware {
	return func(next pipeline.Extractor) pipeline.Extractor {
		return pipeline.Func{
			Name: next.StageName(),
			Fn: func(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
				start := time.Now()

				// Call the stage
				out, err := next.Extract(ctx, in)

				// Record the duration
				metrics.RecordStageLatency(next.StageName(), ErrorCode(err), time.Since(start).Seconds())

				return out, err
			},
		}
	}
}
