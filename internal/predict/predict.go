// internal/predict/predict.go

// Package predict runs in-process models over the features of a batch and
// stores their outputs as per-row predictions.
package predict

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// model serializes access to one loaded model handle.
type model[T io.Closer] struct {
	mu     sync.Mutex
	handle T
}

// Load loads every model of eval once, keyed by EvalConfig.ModelKey. On
// failure the models loaded so far are closed.
func Load[T io.Closer](eval config.EvalConfig, load func(config.ModelSpec) (T, error)) (map[string]T, error) {
	loaded := make(map[string]T, len(eval.ModelSpecs))
	for _, spec := range eval.ModelSpecs {
		h, err := load(spec)
		if err != nil {
			for _, l := range loaded {
				_ = l.Close()
			}
			return nil, fmt.Errorf("load model %q from %s: %w", spec.Name, spec.Path, err)
		}
		loaded[eval.ModelKey(spec)] = h
	}
	return loaded, nil
}

func guard[T io.Closer](handles map[string]T) map[string]*model[T] {
	out := make(map[string]*model[T], len(handles))
	for k, h := range handles {
		out[k] = &model[T]{handle: h}
	}
	return out
}

func closeAll[T io.Closer](models map[string]*model[T]) error {
	var errs []error
	for name, m := range models {
		m.mu.Lock()
		if err := m.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model %q: %w", name, err))
		}
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

// FeatureName maps a model input name to the feature it is fed from. The
// TFLite converter prefixes inputs with the serving signature key.
func FeatureName(input string) string {
	input = strings.TrimPrefix(input, "serving_default_")
	name, _, _ := strings.Cut(input, ":")
	return name
}

func defaultValue(dtype tensor.DType) float64 {
	switch dtype {
	case tensor.Float32, tensor.Float64, tensor.Int64:
		return -1
	}
	return 0
}

// rowShape is the shape of one row of an input: batch dimension 1 and unknown
// inner dimensions collapsed to 1.
func rowShape(shape []int) []int {
	out := []int{1}
	if len(shape) > 1 {
		for _, d := range shape[1:] {
			if d < 0 {
				d = 1
			}
			out = append(out, d)
		}
	}
	return out
}

// batcher builds batched model inputs from per-row features.
type batcher struct {
	// warn is sampled so a feature missing from every row does not flood the log
	warn zerolog.Logger
}

func newBatcher(logger zerolog.Logger) *batcher {
	return &batcher{warn: logger.Sample(&zerolog.BasicSampler{N: 100})}
}

// input concatenates the rows' values for info. Missing values are replaced by
// a filled default of the row shape.
func (b *batcher) input(feats []extract.Features, modelName string, info inference.TensorInfo) (*tensor.Tensor, error) {
	name := FeatureName(info.Name)
	shape := rowShape(info.Shape)

	parts := make([]*tensor.Tensor, len(feats))
	for i, row := range feats {
		v := row[name]
		if v == nil {
			d, err := tensor.Filled(info.DType, shape, defaultValue(info.DType))
			if err != nil {
				return nil, fmt.Errorf("default for %q: %w", name, err)
			}
			b.warn.Warn().
				Str("model", modelName).
				Str("feature", name).
				Msg("feature not found, setting default value")
			metrics.RecordDefaultedFeature(modelName, name)
			parts[i] = d
			continue
		}

		c, err := v.Cast(info.DType)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %q row %d: %v", extract.ErrDTypeMismatch, name, i, err)
		}
		r, err := c.Reshape(shape)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %q row %d: %v", extract.ErrShapeMismatch, name, i, err)
		}
		parts[i] = r
	}

	t, err := tensor.Concat(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: feature %q: %v", extract.ErrShapeMismatch, name, err)
	}
	return t, nil
}
