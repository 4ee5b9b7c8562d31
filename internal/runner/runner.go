// internal/runner/runner.go

// Package runner feeds an Arrow IPC stream through the extractor pipeline and
// writes one JSON line per input row.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/middleware"
	"github.com/SyedDaiam9101/model-evaluator/internal/pipeline"
)

// Line is one output record.
type Line struct {
	Batch      int                 `json:"batch"`
	Row        int                 `json:"row"`
	Prediction *extract.Prediction `json:"prediction"`
}

// Stats summarizes one Run.
type Stats struct {
	Batches int
	Rows    int
}

// Runner processes record batches sequentially. Each batch is handed to the
// pipeline as one extract.
type Runner struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
	mem      memory.Allocator
}

// New creates a Runner. A nil allocator uses the Go allocator.
func New(p *pipeline.Pipeline, logger zerolog.Logger, mem memory.Allocator) *Runner {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Runner{pipeline: p, logger: logger, mem: mem}
}

// Run reads record batches from r until the stream ends and writes the
// predictions of every row to w. The first failing batch stops the run.
func (rn *Runner) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	var stats Stats

	rdr, err := ipc.NewReader(r, ipc.WithAllocator(rn.mem))
	if err != nil {
		return stats, fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()

	enc := json.NewEncoder(w)
	for rdr.Next() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows, err := rn.runBatch(ctx, stats.Batches, rdr, enc)
		if err != nil {
			return stats, err
		}
		stats.Batches++
		stats.Rows += rows
	}
	if err := rdr.Err(); err != nil {
		return stats, fmt.Errorf("read arrow stream: %w", err)
	}
	return stats, nil
}

func (rn *Runner) runBatch(ctx context.Context, batch int, rdr *ipc.Reader, enc *json.Encoder) (int, error) {
	start := time.Now()

	// Get batch ID for logging
	batchID := uuid.New().String()
	ctx = middleware.WithBatchID(ctx, batchID)

	rec := rdr.Record()
	metrics.RecordBatchRows(int(rec.NumRows()))

	out, err := rn.pipeline.Run(ctx, extract.Extracts{extract.ArrowRecordBatchKey: rec})
	if err != nil {
		rn.logger.Error().Err(err).
			Int("batch", batch).
			Str("batch_id", batchID).
			Str("code", middleware.ErrorCode(err)).
			Msg("batch failed")
		return 0, fmt.Errorf("batch %d: %w", batch, err)
	}

	preds, err := out.Predictions()
	if err != nil {
		return 0, fmt.Errorf("batch %d: %w", batch, err)
	}
	for i, p := range preds {
		if err := enc.Encode(Line{Batch: batch, Row: i, Prediction: p}); err != nil {
			return 0, fmt.Errorf("write batch %d row %d: %w", batch, i, err)
		}
	}

	// Log batch metrics
	rn.logger.Info().
		Int("batch", batch).
		Str("batch_id", batchID).
		Int64("rows", rec.NumRows()).
		Int("predictions", len(preds)).
		Float64("total_ms", float64(time.Since(start).Microseconds())/1000.0).
		Msg("processed batch")
	return len(preds), nil
}
