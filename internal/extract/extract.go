// internal/extract/extract.go

// Package extract defines the batch container passed between extractors and
// the typed values stored under its well-known keys.
package extract

import (
	"fmt"
	"maps"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

const (
	// ArrowRecordBatchKey holds the arrow.Record a batch was decoded from.
	ArrowRecordBatchKey = "arrow_record_batch"
	// InputKey holds the raw serialized records as [][]byte.
	InputKey = "input"
	// FeaturesKey holds []Features, one per row.
	FeaturesKey = "features"
	// PredictionsKey holds []*Prediction, one per row.
	PredictionsKey = "predictions"

	// ArrowInputColumn is the reserved record batch column with raw serialized records.
	ArrowInputColumn = "__raw_record__"
)

// Features maps a feature name to its value for one row. A nil value is a null.
type Features map[string]*tensor.Tensor

// Extracts is one batch of intermediate results. Stages never mutate the
// extracts they receive; they return a shallow copy with their keys set.
type Extracts map[string]any

func (e Extracts) Copy() Extracts {
	return maps.Clone(e)
}

func get[T any](e Extracts, key string) (T, error) {
	var zero T
	v, ok := e[key]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrInvalidValue, key, v)
	}
	return t, nil
}

func (e Extracts) RecordBatch() (arrow.Record, error) {
	return get[arrow.Record](e, ArrowRecordBatchKey)
}

func (e Extracts) Features() ([]Features, error) {
	return get[[]Features](e, FeaturesKey)
}

// Inputs returns the raw serialized records. A nil slice is valid when the
// record batch had no raw record column.
func (e Extracts) Inputs() ([][]byte, error) {
	return get[[][]byte](e, InputKey)
}

func (e Extracts) Predictions() ([]*Prediction, error) {
	return get[[]*Prediction](e, PredictionsKey)
}
