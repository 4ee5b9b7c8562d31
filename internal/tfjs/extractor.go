// internal/tfjs/extractor.go
package tfjs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

const StageName = "ExtractTFJSPredictions"

// Extractor reads extract.FeaturesKey and sets extract.PredictionsKey by
// running each model through the inference binary. Every invocation uses its
// own scratch directories, so concurrent calls are safe.
type Extractor struct {
	logger zerolog.Logger
	eval   config.EvalConfig
	models map[string]*Model
	client *Client
}

// New creates the extractor over models returned by Setup.
func New(logger zerolog.Logger, eval config.EvalConfig, models map[string]*Model, client *Client) *Extractor {
	return &Extractor{
		logger: logger.With().Str("stage", StageName).Logger(),
		eval:   eval,
		models: models,
		client: client,
	}
}

func (e *Extractor) StageName() string { return StageName }

func (e *Extractor) Extract(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
	feats, err := in.Features()
	if err != nil {
		return nil, err
	}

	preds := []*extract.Prediction{}
	if len(feats) > 0 {
		for _, spec := range e.eval.ModelSpecs {
			m, ok := e.models[e.eval.ModelKey(spec)]
			if !ok {
				return nil, fmt.Errorf("%w: %q", extract.ErrModelNotFound, spec.Name)
			}
			outputs, err := e.predict(ctx, m, feats)
			if err != nil {
				return nil, fmt.Errorf("model %q: %w", spec.Name, err)
			}
			preds, err = extract.MergeOutputs(preds, outputs, len(feats), spec.Name, e.eval.MultiModel())
			if err != nil {
				return nil, fmt.Errorf("model %q: %w", spec.Name, err)
			}
		}
	}

	out := in.Copy()
	out[extract.PredictionsKey] = preds
	return out, nil
}

func (e *Extractor) predict(ctx context.Context, m *Model, feats []extract.Features) ([]extract.NamedTensor, error) {
	inputs := make([]extract.NamedTensor, len(m.Signature.Inputs))
	for i, spec := range m.Signature.Inputs {
		t, err := batchInput(feats, spec)
		if err != nil {
			return nil, err
		}
		inputs[i] = extract.NamedTensor{Name: spec.Name, Tensor: t}
	}
	names := make([]string, len(m.Signature.Outputs))
	for i, o := range m.Signature.Outputs {
		names[i] = baseName(o.Name)
	}

	start := time.Now()
	outputs, err := e.client.Infer(ctx, m.Dir, inputs, names)
	if err != nil {
		return nil, err
	}
	metrics.RecordInferenceLatency(config.RuntimeTFJS, m.Name, time.Since(start).Seconds())

	e.logger.Debug().
		Str("model", m.Name).
		Int("rows", len(feats)).
		Int("outputs", len(outputs)).
		Msg("ran inference binary")
	return outputs, nil
}

// batchInput reshapes every row's value to the declared dims and concatenates
// them. TFJS has no int64 tensors, so int64 values are narrowed to int32.
func batchInput(feats []extract.Features, spec TensorShape) (*tensor.Tensor, error) {
	name := baseName(spec.Name)
	parts := make([]*tensor.Tensor, len(feats))
	for i, row := range feats {
		v := row[name]
		if v == nil {
			return nil, fmt.Errorf("%w: %q (row %d)", extract.ErrMissingFeature, name, i)
		}
		if v.DType() == tensor.Int64 {
			c, err := v.Cast(tensor.Int32)
			if err != nil {
				return nil, err
			}
			v = c
		}
		if v.Rank() > len(spec.Dims) {
			return nil, fmt.Errorf("%w: ranks for input %q are not compatible with the model", extract.ErrShapeMismatch, name)
		}
		r, err := v.Reshape(spec.Dims)
		if err != nil {
			return nil, fmt.Errorf("%w: input %q row %d: %v", extract.ErrShapeMismatch, name, i, err)
		}
		parts[i] = r
	}
	t, err := tensor.Concat(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: input %q: %v", extract.ErrShapeMismatch, name, err)
	}
	return t, nil
}
