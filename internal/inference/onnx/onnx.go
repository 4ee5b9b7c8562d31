// internal/inference/onnx/onnx.go
package onnx

import (
	"fmt"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/inference"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

var initOnce struct {
	sync.Mutex
	done bool
}

// Init initializes the ONNX runtime environment once per process. An empty
// sharedLibrary keeps the platform default.
func Init(sharedLibrary string) error {
	initOnce.Lock()
	defer initOnce.Unlock()
	if initOnce.done {
		return nil
	}
	if sharedLibrary != "" {
		ort.SetSharedLibraryPath(sharedLibrary)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	initOnce.done = true
	return nil
}

// Destroy tears down the environment set up by Init.
func Destroy() error {
	initOnce.Lock()
	defer initOnce.Unlock()
	if !initOnce.done {
		return nil
	}
	initOnce.done = false
	return ort.DestroyEnvironment()
}

// Session wraps an ONNX runtime session for thread-safe inference.
// It implements the inference.Session interface.
type Session struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	inputs  []inference.TensorInfo
	outputs []inference.TensorInfo
}

func describe(specs []config.TensorSpec) ([]inference.TensorInfo, []string, error) {
	infos := make([]inference.TensorInfo, len(specs))
	names := make([]string, len(specs))
	for i, s := range specs {
		dtype, err := tensor.ParseDType(s.DType)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", s.Name, err)
		}
		infos[i] = inference.TensorInfo{Index: i, Name: s.Name, DType: dtype, Shape: slices.Clone(s.Shape)}
		names[i] = s.Name
	}
	return infos, names, nil
}

// New creates a Session for the model at spec.Path using the inputs and
// outputs declared by the model spec. Init must have been called.
func New(spec config.ModelSpec) (*Session, error) {
	inputs, inputNames, err := describe(spec.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, outputNames, err := describe(spec.Outputs)
	if err != nil {
		return nil, err
	}

	// Create a dynamic session that supports variable batch sizes
	session, err := ort.NewDynamicAdvancedSession(
		spec.Path,
		inputNames,
		outputNames,
		nil, // Use default session options
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{session: session, inputs: inputs, outputs: outputs}, nil
}

func (s *Session) Inputs() []inference.TensorInfo  { return slices.Clone(s.inputs) }
func (s *Session) Outputs() []inference.TensorInfo { return slices.Clone(s.outputs) }

func ortShape(shape []int) ort.Shape {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return ort.NewShape(dims...)
}

func newInput[T ort.TensorData](shape []int, data []T) (ort.ArbitraryTensor, error) {
	t, err := ort.NewTensor(ortShape(shape), data)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func toOrt(t *tensor.Tensor) (ort.ArbitraryTensor, error) {
	switch t.DType() {
	case tensor.Float32:
		return newInput(t.Shape(), t.Float32s())
	case tensor.Float64:
		return newInput(t.Shape(), t.Float64s())
	case tensor.Int32:
		return newInput(t.Shape(), t.Int32s())
	case tensor.Int64:
		return newInput(t.Shape(), t.Int64s())
	}
	return nil, fmt.Errorf("%s tensors are not supported", t.DType())
}

// output is a preallocated ONNX tensor plus the conversion back to tensor.Tensor.
type output struct {
	value   ort.ArbitraryTensor
	convert func() (*tensor.Tensor, error)
}

func newOutput[T ort.TensorData](shape []int, wrap func([]int, []T) (*tensor.Tensor, error)) (output, error) {
	t, err := ort.NewEmptyTensor[T](ortShape(shape))
	if err != nil {
		return output{}, err
	}
	return output{
		value: t,
		convert: func() (*tensor.Tensor, error) {
			return wrap(shape, slices.Clone(t.GetData()))
		},
	}, nil
}

func allocOutput(info inference.TensorInfo, batch int) (output, error) {
	shape := slices.Clone(info.Shape)
	if len(shape) == 0 {
		return output{}, fmt.Errorf("output %q has no batch dimension", info.Name)
	}
	shape[0] = batch
	for _, d := range shape[1:] {
		if d < 0 {
			return output{}, fmt.Errorf("output %q: only the batch dimension may be dynamic, got %v", info.Name, info.Shape)
		}
	}
	switch info.DType {
	case tensor.Float32:
		return newOutput(shape, tensor.FromFloat32)
	case tensor.Float64:
		return newOutput(shape, tensor.FromFloat64)
	case tensor.Int32:
		return newOutput(shape, tensor.FromInt32)
	case tensor.Int64:
		return newOutput(shape, tensor.FromInt64)
	}
	return output{}, fmt.Errorf("output %q: %s tensors are not supported", info.Name, info.DType)
}

// Run runs batch inference. Inputs are given in declaration order; output
// tensors are allocated with batch as their leading dimension.
func (s *Session) Run(inputs []*tensor.Tensor, batch int) ([]*tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("got %d inputs, expected %d", len(inputs), len(s.inputs))
	}

	in := make([]ort.ArbitraryTensor, 0, len(inputs))
	defer func() {
		for _, t := range in {
			t.Destroy()
		}
	}()
	for i, t := range inputs {
		v, err := toOrt(t)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor %q: %w", s.inputs[i].Name, err)
		}
		in = append(in, v)
	}

	outs := make([]output, 0, len(s.outputs))
	values := make([]ort.ArbitraryTensor, 0, len(s.outputs))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for _, info := range s.outputs {
		o, err := allocOutput(info, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to create output tensor: %w", err)
		}
		outs = append(outs, o)
		values = append(values, o.value)
	}

	if err := s.session.Run(in, values); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	result := make([]*tensor.Tensor, len(outs))
	for i, o := range outs {
		t, err := o.convert()
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// Close releases the ONNX session resources
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return nil
}

// Ensure Session implements inference.Session at compile time
var _ inference.Session = (*Session)(nil)
