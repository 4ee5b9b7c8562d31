// internal/tensor/tensor.go

// Package tensor holds the dense, typed values that flow between extractors:
// feature values parsed from record batches and model inputs/outputs.
package tensor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
)

// Tensor is a dense n-dimensional array. A rank-0 shape is a scalar.
// Tensors are treated as immutable; operations return new values that may
// share storage with their receiver.
type Tensor struct {
	dtype DType
	shape []int
	data  any
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	return n, nil
}

func newTensor(dtype DType, shape []int, data any, n int) (*Tensor, error) {
	want, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if want != n {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, want, n)
	}
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: data}, nil
}

func FromFloat32(shape []int, data []float32) (*Tensor, error) {
	return newTensor(Float32, shape, data, len(data))
}

func FromFloat64(shape []int, data []float64) (*Tensor, error) {
	return newTensor(Float64, shape, data, len(data))
}

func FromInt32(shape []int, data []int32) (*Tensor, error) {
	return newTensor(Int32, shape, data, len(data))
}

func FromInt64(shape []int, data []int64) (*Tensor, error) {
	return newTensor(Int64, shape, data, len(data))
}

func FromBool(shape []int, data []bool) (*Tensor, error) {
	return newTensor(Bool, shape, data, len(data))
}

func FromStrings(shape []int, data [][]byte) (*Tensor, error) {
	return newTensor(String, shape, data, len(data))
}

// Must panics on a construction error. Meant for literals in tests and tables.
func Must(t *Tensor, err error) *Tensor {
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tensor) DType() DType { return t.dtype }

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

func (t *Tensor) Rank() int { return len(t.shape) }

// Size is the number of elements.
func (t *Tensor) Size() int {
	n, _ := numElements(t.shape)
	return n
}

// Dim0 returns the leading dimension.
func (t *Tensor) Dim0() (int, error) {
	if len(t.shape) == 0 {
		return 0, fmt.Errorf("scalar tensor has no leading dimension")
	}
	return t.shape[0], nil
}

// Data returns the flat backing slice ([]float32, []int64, [][]byte, ...).
func (t *Tensor) Data() any { return t.data }

func (t *Tensor) Float32s() []float32 { s, _ := t.data.([]float32); return s }
func (t *Tensor) Float64s() []float64 { s, _ := t.data.([]float64); return s }
func (t *Tensor) Int32s() []int32     { s, _ := t.data.([]int32); return s }
func (t *Tensor) Int64s() []int64     { s, _ := t.data.([]int64); return s }
func (t *Tensor) Bools() []bool       { s, _ := t.data.([]bool); return s }
func (t *Tensor) Strings() [][]byte   { s, _ := t.data.([][]byte); return s }

// Reshape returns a view of t with a new shape. At most one dimension may be
// -1, in which case it is inferred from the element count.
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	size := t.Size()
	known, infer := 1, -1
	for i, d := range shape {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("cannot reshape %v to %v: more than one unknown dimension", t.shape, shape)
			}
			infer = i
		case d < 0:
			return nil, fmt.Errorf("cannot reshape %v to %v: invalid dimension %d", t.shape, shape, d)
		default:
			known *= d
		}
	}
	out := slices.Clone(shape)
	if infer >= 0 {
		if known == 0 || size%known != 0 {
			return nil, fmt.Errorf("cannot reshape %v of size %d to %v", t.shape, size, shape)
		}
		out[infer] = size / known
	} else if known != size {
		return nil, fmt.Errorf("cannot reshape %v of size %d to %v", t.shape, size, shape)
	}
	return &Tensor{dtype: t.dtype, shape: out, data: t.data}, nil
}

func rowOf[T any](data any, lo, hi int) any {
	s := data.([]T)
	return s[lo:hi:hi]
}

// Row returns the i-th slice along the leading dimension.
func (t *Tensor) Row(i int) (*Tensor, error) {
	n, err := t.Dim0()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, n)
	}
	inner := t.shape[1:]
	stride, _ := numElements(inner)
	lo, hi := i*stride, (i+1)*stride

	var data any
	switch t.dtype {
	case Float32:
		data = rowOf[float32](t.data, lo, hi)
	case Float64:
		data = rowOf[float64](t.data, lo, hi)
	case Int32:
		data = rowOf[int32](t.data, lo, hi)
	case Int64:
		data = rowOf[int64](t.data, lo, hi)
	case Bool:
		data = rowOf[bool](t.data, lo, hi)
	case String:
		data = rowOf[[]byte](t.data, lo, hi)
	default:
		return nil, fmt.Errorf("row of %s tensor", t.dtype)
	}
	return &Tensor{dtype: t.dtype, shape: slices.Clone(inner), data: data}, nil
}

func concatOf[T any](ts []*Tensor, n int) any {
	out := make([]T, 0, n)
	for _, t := range ts {
		out = append(out, t.data.([]T)...)
	}
	return out
}

// Concat joins tensors along axis 0. All inputs must share dtype and inner shape.
func Concat(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat of zero tensors")
	}
	first := ts[0]
	if first.Rank() == 0 {
		return nil, fmt.Errorf("cannot concat scalar tensors")
	}
	rows, total := 0, 0
	for i, t := range ts {
		if t.dtype != first.dtype {
			return nil, fmt.Errorf("concat: tensor %d has dtype %s, expected %s", i, t.dtype, first.dtype)
		}
		if t.Rank() != first.Rank() || !slices.Equal(t.shape[1:], first.shape[1:]) {
			return nil, fmt.Errorf("concat: tensor %d has shape %v, incompatible with %v", i, t.shape, first.shape)
		}
		rows += t.shape[0]
		total += t.Size()
	}

	var data any
	switch first.dtype {
	case Float32:
		data = concatOf[float32](ts, total)
	case Float64:
		data = concatOf[float64](ts, total)
	case Int32:
		data = concatOf[int32](ts, total)
	case Int64:
		data = concatOf[int64](ts, total)
	case Bool:
		data = concatOf[bool](ts, total)
	case String:
		data = concatOf[[]byte](ts, total)
	default:
		return nil, fmt.Errorf("concat of %s tensors", first.dtype)
	}
	shape := append([]int{rows}, first.shape[1:]...)
	return &Tensor{dtype: first.dtype, shape: shape, data: data}, nil
}

// Filled returns a tensor of the given shape with every element set to value.
// String tensors are filled with empty strings.
func Filled(dtype DType, shape []int, value float64) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	var data any
	switch dtype {
	case Float32:
		data = filledOf(n, float32(value))
	case Float64:
		data = filledOf(n, value)
	case Int32:
		data = filledOf(n, int32(value))
	case Int64:
		data = filledOf(n, int64(value))
	case Bool:
		data = filledOf(n, value != 0)
	case String:
		s := make([][]byte, n)
		for i := range s {
			s[i] = []byte{}
		}
		data = s
	default:
		return nil, fmt.Errorf("cannot fill %s tensor", dtype)
	}
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: data}, nil
}

func filledOf[T any](n int, v T) []T {
	s := make([]T, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// Equal reports whether both tensors have the same dtype, shape and values.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.dtype != o.dtype || !slices.Equal(t.shape, o.shape) {
		return false
	}
	if t.Size() == 0 {
		return true
	}
	return reflect.DeepEqual(t.data, o.data)
}

func nest[T any](data []T, shape []int) any {
	if len(shape) == 0 {
		return data[0]
	}
	if len(shape) == 1 {
		if data == nil {
			return []T{}
		}
		return data
	}
	out := make([]any, shape[0])
	if shape[0] == 0 {
		return out
	}
	stride := len(data) / shape[0]
	for i := range out {
		out[i] = nest(data[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}

func nonFinite[T float32 | float64](v T) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// nestFloats is nest with NaN and Inf replaced by nil, which JSON cannot
// represent otherwise.
func nestFloats[T float32 | float64](data []T, shape []int) any {
	if !slices.ContainsFunc(data, nonFinite[T]) {
		return nest(data, shape)
	}
	vals := make([]any, len(data))
	for i, v := range data {
		if !nonFinite(v) {
			vals[i] = v
		}
	}
	return nest(vals, shape)
}

// Nested returns the values as nested slices following the shape, the
// layout expected by JSON consumers. String elements become Go strings and
// non-finite floats become nil (JSON null).
func (t *Tensor) Nested() any {
	switch t.dtype {
	case Float32:
		return nestFloats(t.Float32s(), t.shape)
	case Float64:
		return nestFloats(t.Float64s(), t.shape)
	case Int32:
		return nest(t.Int32s(), t.shape)
	case Int64:
		return nest(t.Int64s(), t.shape)
	case Bool:
		return nest(t.Bools(), t.shape)
	case String:
		raw := t.Strings()
		s := make([]string, len(raw))
		for i, b := range raw {
			s[i] = string(b)
		}
		return nest(s, t.shape)
	}
	return nil
}

func (t *Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Nested())
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v%v", t.dtype, t.shape, t.Nested())
}
