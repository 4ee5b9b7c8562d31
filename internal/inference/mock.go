// internal/inference/mock.go
package inference

import (
	"fmt"
	"slices"

	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// ComputeFunc produces outputs from the inputs of one invocation.
type ComputeFunc func(inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

// MockInterpreter is a mock implementation of Interpreter for testing.
// It keeps the allocation state of a real interpreter: inputs can only be
// set after AllocateTensors and must match the current input shape.
type MockInterpreter struct {
	// Compute produces the outputs; the default returns, for every declared
	// output, a tensor with the batch size of the first input filled with
	// the output's position (1, 2, ...)
	Compute ComputeFunc
	// ShouldError if true, Invoke will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Invoke was called
	CallCount int
	// Resizes records every ResizeInput call as index -> shape
	Resizes []map[int][]int

	inputs    []TensorInfo
	outputs   []TensorInfo
	allocated bool
	set       []*tensor.Tensor
	results   []*tensor.Tensor
	closed    bool
}

// NewMockInterpreter creates a MockInterpreter with the given inputs and
// outputs. Indexes are assigned from their positions.
func NewMockInterpreter(inputs, outputs []TensorInfo) *MockInterpreter {
	m := &MockInterpreter{
		inputs:  cloneInfos(inputs),
		outputs: cloneInfos(outputs),
	}
	m.set = make([]*tensor.Tensor, len(m.inputs))
	return m
}

func cloneInfos(infos []TensorInfo) []TensorInfo {
	out := make([]TensorInfo, len(infos))
	for i, info := range infos {
		info.Index = i
		info.Shape = slices.Clone(info.Shape)
		out[i] = info
	}
	return out
}

func (m *MockInterpreter) InputDetails() []TensorInfo  { return cloneInfos(m.inputs) }
func (m *MockInterpreter) OutputDetails() []TensorInfo { return cloneInfos(m.outputs) }

func (m *MockInterpreter) ResizeInput(index int, shape []int) error {
	if index < 0 || index >= len(m.inputs) {
		return fmt.Errorf("input index %d out of range", index)
	}
	m.inputs[index].Shape = slices.Clone(shape)
	m.allocated = false
	m.Resizes = append(m.Resizes, map[int][]int{index: slices.Clone(shape)})
	return nil
}

func (m *MockInterpreter) AllocateTensors() error {
	m.allocated = true
	return nil
}

func (m *MockInterpreter) SetInput(index int, t *tensor.Tensor) error {
	if !m.allocated {
		return fmt.Errorf("tensors not allocated")
	}
	if index < 0 || index >= len(m.inputs) {
		return fmt.Errorf("input index %d out of range", index)
	}
	info := m.inputs[index]
	if !slices.Equal(info.Shape, t.Shape()) {
		return fmt.Errorf("input %q: shape %v does not match allocated shape %v", info.Name, t.Shape(), info.Shape)
	}
	if info.DType != t.DType() {
		return fmt.Errorf("input %q: got dtype %s, expected %s", info.Name, t.DType(), info.DType)
	}
	m.set[index] = t
	return nil
}

// Invoke runs Compute on the inputs set so far.
func (m *MockInterpreter) Invoke() error {
	m.CallCount++

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return fmt.Errorf("%s", m.ErrorMessage)
		}
		return fmt.Errorf("mock inference error")
	}
	for i, t := range m.set {
		if t == nil {
			return fmt.Errorf("input %d was not set", i)
		}
	}

	compute := m.Compute
	if compute == nil {
		compute = m.defaultCompute
	}
	results, err := compute(m.set)
	if err != nil {
		return err
	}
	m.results = results
	return nil
}

func (m *MockInterpreter) defaultCompute(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	batch := 1
	if len(inputs) > 0 {
		n, err := inputs[0].Dim0()
		if err != nil {
			return nil, err
		}
		batch = n
	}
	out := make([]*tensor.Tensor, len(m.outputs))
	for i, info := range m.outputs {
		shape := []int{batch}
		if len(info.Shape) > 1 {
			shape = append(shape, info.Shape[1:]...)
		}
		t, err := tensor.Filled(info.DType, shape, float64(i+1))
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (m *MockInterpreter) Output(index int) (*tensor.Tensor, error) {
	if index < 0 || index >= len(m.results) {
		return nil, fmt.Errorf("output index %d not available", index)
	}
	return m.results[index], nil
}

// Close marks the interpreter closed
func (m *MockInterpreter) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockInterpreter) Closed() bool { return m.closed }

// SetError configures the mock to return an error on the next Invoke call
func (m *MockInterpreter) SetError(msg string) {
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockInterpreter) ClearError() {
	m.ShouldError = false
	m.ErrorMessage = ""
}

// MockSession is a mock implementation of Session for testing.
type MockSession struct {
	// Compute produces the outputs; the default behaves like MockInterpreter's.
	Compute ComputeFunc
	// CallCount tracks the number of times Run was called
	CallCount int

	inputs  []TensorInfo
	outputs []TensorInfo
	interp  *MockInterpreter
}

func NewMockSession(inputs, outputs []TensorInfo) *MockSession {
	return &MockSession{
		inputs:  cloneInfos(inputs),
		outputs: cloneInfos(outputs),
		interp:  NewMockInterpreter(inputs, outputs),
	}
}

func (s *MockSession) Inputs() []TensorInfo  { return cloneInfos(s.inputs) }
func (s *MockSession) Outputs() []TensorInfo { return cloneInfos(s.outputs) }

func (s *MockSession) Run(inputs []*tensor.Tensor, batch int) ([]*tensor.Tensor, error) {
	s.CallCount++
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("got %d inputs, expected %d", len(inputs), len(s.inputs))
	}
	for i, t := range inputs {
		n, err := t.Dim0()
		if err != nil || n != batch {
			return nil, fmt.Errorf("input %q: leading dimension does not match batch %d", s.inputs[i].Name, batch)
		}
	}
	if s.Compute != nil {
		return s.Compute(inputs)
	}
	return s.interp.defaultCompute(inputs)
}

func (s *MockSession) Close() error { return nil }

// Ensure the mocks implement their interfaces at compile time
var (
	_ Interpreter = (*MockInterpreter)(nil)
	_ Session     = (*MockSession)(nil)
)
