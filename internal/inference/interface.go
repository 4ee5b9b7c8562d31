// internal/inference/interface.go
package inference

import "github.com/SyedDaiam9101/model-evaluator/internal/tensor"

// TensorInfo describes one model input or output as reported by a runtime.
type TensorInfo struct {
	Index int
	Name  string
	DType tensor.DType
	Shape []int
}

// Interpreter is a mobile-format model interpreter. It is stateful: input
// shapes and allocated buffers persist between invocations and are resized
// on demand, so an Interpreter must not be used concurrently.
type Interpreter interface {
	// InputDetails describes the inputs at their currently allocated shapes.
	InputDetails() []TensorInfo
	OutputDetails() []TensorInfo

	// ResizeInput changes the shape of an input. AllocateTensors must be
	// called before the input is set again.
	ResizeInput(index int, shape []int) error
	AllocateTensors() error

	SetInput(index int, t *tensor.Tensor) error
	Invoke() error
	Output(index int) (*tensor.Tensor, error)

	// Close releases any resources held by the interpreter.
	Close() error
}

// Session runs a model whose inputs and outputs are bound on every call,
// with a dynamic leading (batch) dimension.
type Session interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo

	// Run feeds one tensor per input, in Inputs order, and returns one
	// tensor per output with batch as the leading dimension.
	Run(inputs []*tensor.Tensor, batch int) ([]*tensor.Tensor, error)

	Close() error
}
