// internal/predict/tflite.go
package predict

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
)

const TFLiteStageName = "ExtractTFLitePredictions"

// InterpreterLoader creates the interpreter for one model spec.
type InterpreterLoader func(spec config.ModelSpec) (inference.Interpreter, error)

// TFLiteExtractor reads extract.FeaturesKey and sets extract.PredictionsKey.
// Calls for the same model are serialized since interpreters keep their
// input shapes between invocations.
type TFLiteExtractor struct {
	logger  zerolog.Logger
	batcher *batcher
	eval    config.EvalConfig
	models  map[string]*model[inference.Interpreter]
}

// NewTFLite creates the extractor over interpreters keyed by
// EvalConfig.ModelKey, as returned by Load. The extractor owns the
// interpreters.
func NewTFLite(logger zerolog.Logger, eval config.EvalConfig, interpreters map[string]inference.Interpreter) *TFLiteExtractor {
	logger = logger.With().Str("stage", TFLiteStageName).Logger()
	return &TFLiteExtractor{
		logger:  logger,
		batcher: newBatcher(logger),
		eval:    eval,
		models:  guard(interpreters),
	}
}

func (e *TFLiteExtractor) StageName() string { return TFLiteStageName }

func (e *TFLiteExtractor) Extract(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
	feats, err := in.Features()
	if err != nil {
		return nil, err
	}

	preds := []*extract.Prediction{}
	if len(feats) > 0 {
		for _, spec := range e.eval.ModelSpecs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			key := e.eval.ModelKey(spec)
			m, ok := e.models[key]
			if !ok {
				return nil, fmt.Errorf("%w: %q", extract.ErrModelNotFound, spec.Name)
			}
			outputs, err := e.invoke(m, spec.Name, feats)
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

func (e *TFLiteExtractor) invoke(m *model[inference.Interpreter], name string, feats []extract.Features) ([]extract.NamedTensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interp := m.handle

	details := interp.InputDetails()
	inputs := make([]extract.NamedTensor, len(details))
	for i, d := range details {
		t, err := e.batcher.input(feats, name, d)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(t.Shape(), d.Shape) {
			if err := interp.ResizeInput(d.Index, t.Shape()); err != nil {
				return nil, err
			}
		}
		inputs[i] = extract.NamedTensor{Name: d.Name, Tensor: t}
	}
	if err := interp.AllocateTensors(); err != nil {
		return nil, err
	}
	for i, d := range details {
		if err := interp.SetInput(d.Index, inputs[i].Tensor); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	if err := interp.Invoke(); err != nil {
		return nil, fmt.Errorf("%w: %v", extract.ErrInferenceFailed, err)
	}
	metrics.RecordInferenceLatency(config.RuntimeTFLite, name, time.Since(start).Seconds())

	outs := interp.OutputDetails()
	outputs := make([]extract.NamedTensor, len(outs))
	for i, d := range outs {
		t, err := interp.Output(d.Index)
		if err != nil {
			return nil, err
		}
		outputs[i] = extract.NamedTensor{Name: d.Name, Tensor: t}
	}

	e.logger.Debug().
		Str("model", name).
		Int("rows", len(feats)).
		Int("outputs", len(outputs)).
		Msg("invoked interpreter")
	return outputs, nil
}

// Close releases every interpreter.
func (e *TFLiteExtractor) Close() error {
	return closeAll(e.models)
}
