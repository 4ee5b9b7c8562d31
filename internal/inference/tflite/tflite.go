// internal/inference/tflite/tflite.go

// Package tflite adapts the TensorFlow Lite C API (through go-tflite) to
// inference.Interpreter. It needs libtensorflowlite_c at build and run time.
package tflite

import (
	"fmt"

	tfl "github.com/mattn/go-tflite"

	"github.com/SyedDaiam9101/model-evaluator/internal/inference"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// Interpreter wraps a TFLite interpreter. It is not safe for concurrent use.
type Interpreter struct {
	model       *tfl.Model
	options     *tfl.InterpreterOptions
	interpreter *tfl.Interpreter
}

// Load creates an interpreter for the .tflite flatbuffer at modelPath.
func Load(modelPath string, numThreads int) (*Interpreter, error) {
	model := tfl.NewModelFromFile(modelPath)
	if model == nil {
		return nil, fmt.Errorf("failed to load TFLite model from %s", modelPath)
	}

	options := tfl.NewInterpreterOptions()
	if numThreads > 0 {
		options.SetNumThread(numThreads)
	}

	interpreter := tfl.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("failed to create TFLite interpreter for %s", modelPath)
	}

	if status := interpreter.AllocateTensors(); status != tfl.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("failed to allocate tensors for %s: status %d", modelPath, status)
	}

	return &Interpreter{model: model, options: options, interpreter: interpreter}, nil
}

func dtypeOf(tt tfl.TensorType) tensor.DType {
	switch tt {
	case tfl.Float32:
		return tensor.Float32
	case tfl.Int32:
		return tensor.Int32
	case tfl.Int64:
		return tensor.Int64
	case tfl.Bool:
		return tensor.Bool
	case tfl.String:
		return tensor.String
	}
	return tensor.Invalid
}

func describe(t *tfl.Tensor, index int) inference.TensorInfo {
	shape := make([]int, t.NumDims())
	for i := range shape {
		shape[i] = t.Dim(i)
	}
	return inference.TensorInfo{Index: index, Name: t.Name(), DType: dtypeOf(t.Type()), Shape: shape}
}

func (i *Interpreter) InputDetails() []inference.TensorInfo {
	n := i.interpreter.GetInputTensorCount()
	out := make([]inference.TensorInfo, n)
	for k := 0; k < n; k++ {
		out[k] = describe(i.interpreter.GetInputTensor(k), k)
	}
	return out
}

func (i *Interpreter) OutputDetails() []inference.TensorInfo {
	n := i.interpreter.GetOutputTensorCount()
	out := make([]inference.TensorInfo, n)
	for k := 0; k < n; k++ {
		out[k] = describe(i.interpreter.GetOutputTensor(k), k)
	}
	return out
}

func (i *Interpreter) ResizeInput(index int, shape []int) error {
	dims := make([]int32, len(shape))
	for k, d := range shape {
		dims[k] = int32(d)
	}
	if status := i.interpreter.ResizeInputTensor(index, dims); status != tfl.OK {
		return fmt.Errorf("failed to resize input %d to %v: status %d", index, shape, status)
	}
	return nil
}

func (i *Interpreter) AllocateTensors() error {
	if status := i.interpreter.AllocateTensors(); status != tfl.OK {
		return fmt.Errorf("failed to allocate tensors: status %d", status)
	}
	return nil
}

func (i *Interpreter) SetInput(index int, t *tensor.Tensor) error {
	in := i.interpreter.GetInputTensor(index)
	if in == nil {
		return fmt.Errorf("input index %d out of range", index)
	}
	want := dtypeOf(in.Type())
	if want != t.DType() {
		return fmt.Errorf("input %q: got dtype %s, expected %s", in.Name(), t.DType(), want)
	}
	if t.Size() == 0 {
		return nil
	}

	var status tfl.Status
	switch t.DType() {
	case tensor.Float32:
		status = in.CopyFromBuffer(t.Float32s())
	case tensor.Int32:
		status = in.CopyFromBuffer(t.Int32s())
	case tensor.Int64:
		status = in.CopyFromBuffer(t.Int64s())
	case tensor.Bool:
		status = in.CopyFromBuffer(t.Bools())
	default:
		return fmt.Errorf("input %q: %s tensors are not supported", in.Name(), t.DType())
	}
	if status != tfl.OK {
		return fmt.Errorf("failed to set input %q: status %d", in.Name(), status)
	}
	return nil
}

func (i *Interpreter) Invoke() error {
	if status := i.interpreter.Invoke(); status != tfl.OK {
		return fmt.Errorf("inference failed: status %d", status)
	}
	return nil
}

func (i *Interpreter) Output(index int) (*tensor.Tensor, error) {
	out := i.interpreter.GetOutputTensor(index)
	if out == nil {
		return nil, fmt.Errorf("output index %d out of range", index)
	}
	info := describe(out, index)
	size := 1
	for _, d := range info.Shape {
		size *= d
	}

	var (
		t      *tensor.Tensor
		err    error
		status = tfl.OK
	)
	switch info.DType {
	case tensor.Float32:
		buf := make([]float32, size)
		if size > 0 {
			status = out.CopyToBuffer(buf)
		}
		t, err = tensor.FromFloat32(info.Shape, buf)
	case tensor.Int32:
		buf := make([]int32, size)
		if size > 0 {
			status = out.CopyToBuffer(buf)
		}
		t, err = tensor.FromInt32(info.Shape, buf)
	case tensor.Int64:
		buf := make([]int64, size)
		if size > 0 {
			status = out.CopyToBuffer(buf)
		}
		t, err = tensor.FromInt64(info.Shape, buf)
	case tensor.Bool:
		buf := make([]bool, size)
		if size > 0 {
			status = out.CopyToBuffer(buf)
		}
		t, err = tensor.FromBool(info.Shape, buf)
	default:
		return nil, fmt.Errorf("output %q: unsupported tensor type %d", info.Name, out.Type())
	}
	if status != tfl.OK {
		return nil, fmt.Errorf("failed to read output %q: status %d", info.Name, status)
	}
	return t, err
}

// Close releases the interpreter, its options and the model.
func (i *Interpreter) Close() error {
	if i.interpreter != nil {
		i.interpreter.Delete()
		i.interpreter = nil
	}
	if i.options != nil {
		i.options.Delete()
		i.options = nil
	}
	if i.model != nil {
		i.model.Delete()
		i.model = nil
	}
	return nil
}

// Ensure Interpreter implements inference.Interpreter at compile time
var _ inference.Interpreter = (*Interpreter)(nil)
