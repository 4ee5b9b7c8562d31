// internal/features/features.go

// Package features turns the Arrow record batch of an extract into per-row
// feature mappings.
package features

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
)

const StageName = "ExtractFeatures"

// Extractor reads extract.ArrowRecordBatchKey and sets extract.FeaturesKey
// and extract.InputKey. It holds no state and is safe for concurrent use.
type Extractor struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger.With().Str("stage", StageName).Logger()}
}

func (e *Extractor) StageName() string { return StageName }

// Extract returns a copy of in with features and raw records set. Columns of
// unsupported types are dropped; a raw record column of the wrong type fails
// the batch.
func (e *Extractor) Extract(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
	rec, err := in.RecordBatch()
	if err != nil {
		return nil, err
	}

	cols, raw, err := supportedColumns(rec)
	if err != nil {
		return nil, err
	}

	rows := int(rec.NumRows())
	if len(cols) == 0 && raw != nil {
		// an empty projection has no rows of its own; follow the raw records
		rows = len(raw)
	}

	feats := make([]extract.Features, rows)
	for i := range feats {
		feats[i] = make(extract.Features, len(cols))
	}
	for _, c := range cols {
		for i := 0; i < rows; i++ {
			v, err := cellAt(c.array, i)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", c.name, i, err)
			}
			feats[i][c.name] = v
		}
	}

	e.logger.Debug().
		Int("rows", rows).
		Int("columns", len(cols)).
		Int("dropped", int(rec.NumCols())-len(cols)).
		Msg("extracted features")

	out := in.Copy()
	out[extract.FeaturesKey] = feats
	out[extract.InputKey] = raw
	return out, nil
}

type column struct {
	name  string
	array arrow.Array
}

// supportedColumns splits the raw record column off and drops the columns
// whose types cannot become feature values.
func supportedColumns(rec arrow.Record) ([]column, [][]byte, error) {
	var (
		cols []column
		raw  [][]byte
	)
	for i := 0; i < int(rec.NumCols()); i++ {
		name := rec.ColumnName(i)
		col := rec.Column(i)
		if name == extract.ArrowInputColumn {
			b, err := flattenBinaryList(col)
			if err != nil {
				return nil, nil, fmt.Errorf("%w %q: %v", extract.ErrUnsupportedInputColumn, name, err)
			}
			raw = b
			continue
		}
		if isSupportedColumn(col.DataType()) {
			cols = append(cols, column{name: name, array: col})
		}
	}
	return cols, raw, nil
}
