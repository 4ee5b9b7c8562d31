// internal/predict/onnx.go
package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference"
	"github.com/SyedDaiam9101/model-evaluator/internal/metrics"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

const ONNXStageName = "ExtractONNXPredictions"

// SessionLoader creates the session for one model spec.
type SessionLoader func(spec config.ModelSpec) (inference.Session, error)

// ONNXExtractor is the TFLiteExtractor counterpart for ONNX sessions, which
// take the batch size per run instead of being resized.
type ONNXExtractor struct {
	logger  zerolog.Logger
	batcher *batcher
	eval    config.EvalConfig
	models  map[string]*model[inference.Session]
}

func NewONNX(logger zerolog.Logger, eval config.EvalConfig, sessions map[string]inference.Session) *ONNXExtractor {
	logger = logger.With().Str("stage", ONNXStageName).Logger()
	return &ONNXExtractor{
		logger:  logger,
		batcher: newBatcher(logger),
		eval:    eval,
		models:  guard(sessions),
	}
}

func (e *ONNXExtractor) StageName() string { return ONNXStageName }

func (e *ONNXExtractor) Extract(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
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
			outputs, err := e.run(m, spec.Name, feats)
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

func (e *ONNXExtractor) run(m *model[inference.Session], name string, feats []extract.Features) ([]extract.NamedTensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.handle

	details := session.Inputs()
	inputs := make([]*tensor.Tensor, len(details))
	for i, d := range details {
		t, err := e.batcher.input(feats, name, d)
		if err != nil {
			return nil, err
		}
		inputs[i] = t
	}

	start := time.Now()
	results, err := session.Run(inputs, len(feats))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extract.ErrInferenceFailed, err)
	}
	metrics.RecordInferenceLatency(config.RuntimeONNX, name, time.Since(start).Seconds())

	outs := session.Outputs()
	if len(results) != len(outs) {
		return nil, fmt.Errorf("%w: got %d output tensors, expected %d", extract.ErrRowCountMismatch, len(results), len(outs))
	}
	outputs := make([]extract.NamedTensor, len(outs))
	for i, d := range outs {
		outputs[i] = extract.NamedTensor{Name: d.Name, Tensor: results[i]}
	}
	return outputs, nil
}

// Close releases every session.
func (e *ONNXExtractor) Close() error {
	return closeAll(e.models)
}
