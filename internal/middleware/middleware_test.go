// internal/middleware/middleware_test.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/pipeline"
)

// capture returns a stage that records the context it was called with.
func capture(name string, captured *context.Context, err error) pipeline.Extractor {
	return pipeline.Func{Name: name, Fn: func(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
		*captured = ctx
		if err != nil {
			return nil, err
		}
		return in, nil
	}}
}

func TestBatchID_GeneratesID(t *testing.T) {
	var ctx context.Context
	stage := BatchID()(capture("Stage", &ctx, nil))
	assert.Equal(t, "Stage", stage.StageName())

	_, err := stage.Extract(context.Background(), extract.Extracts{})
	require.NoError(t, err)

	// Verify it looks like a UUID (36 chars with dashes)
	assert.Len(t, GetBatchID(ctx), 36)
}

func TestBatchID_PreservesExistingID(t *testing.T) {
	var ctx context.Context
	stage := BatchID()(capture("Stage", &ctx, nil))

	_, err := stage.Extract(WithBatchID(context.Background(), "batch-7"), extract.Extracts{})
	require.NoError(t, err)
	assert.Equal(t, "batch-7", GetBatchID(ctx))
}

func TestGetBatchID_EmptyContext(t *testing.T) {
	assert.Equal(t, "", GetBatchID(context.Background()))
}

func TestMetrics_RecordsStageAndCode(t *testing.T) {
	var ctx context.Context
	before := testutil.CollectAndCount(metrics.StageHandlingSeconds)

	ok := Metrics()(capture("MetricsOKStage", &ctx, nil))
	_, err := ok.Extract(context.Background(), extract.Extracts{})
	require.NoError(t, err)

	failing := Metrics()(capture("MetricsFailingStage", &ctx, extract.ErrModelNotFound))
	_, err = failing.Extract(context.Background(), extract.Extracts{})
	require.Error(t, err)

	assert.Equal(t, before+2, testutil.CollectAndCount(metrics.StageHandlingSeconds))
}

func TestTracing_SpanPerStage(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var ctx context.Context
	stages := pipeline.New([]pipeline.Extractor{
		capture("ExtractFeatures", &ctx, nil),
		capture("ExtractTFLitePredictions", &ctx, fmt.Errorf("wrapped: %w", extract.ErrShapeMismatch)),
	}, BatchID(), Tracing(tp))

	_, err := stages.Run(WithBatchID(context.Background(), "batch-1"), extract.Extracts{})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ExtractFeatures", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("batch.id", "batch-1"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, "ExtractTFLitePredictions", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "InvalidArgument", spans[1].Status().Description)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "OK"},
		{context.Canceled, "Canceled"},
		{fmt.Errorf("stage: %w", context.DeadlineExceeded), "DeadlineExceeded"},
		{fmt.Errorf("%w: %q", extract.ErrModelNotFound, "m"), "NotFound"},
		{extract.ErrMissingKey, "FailedPrecondition"},
		{extract.ErrMissingFeature, "InvalidArgument"},
		{extract.ErrUnsupportedInputColumn, "InvalidArgument"},
		{extract.ErrRowCountMismatch, "Internal"},
		{extract.ErrResultsMissing, "Internal"},
		{errors.New("something else"), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "%v", tt.err)
	}
}
