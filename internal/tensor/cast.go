// internal/tensor/cast.go
package tensor

import (
	"fmt"
	"slices"
)

type number interface {
	~float32 | ~float64 | ~int32 | ~int64
}

func convert[From, To number](in []From) []To {
	out := make([]To, len(in))
	for i, v := range in {
		out[i] = To(v)
	}
	return out
}

func castNumeric[From number](in []From, to DType) any {
	switch to {
	case Float32:
		return convert[From, float32](in)
	case Float64:
		return convert[From, float64](in)
	case Int32:
		return convert[From, int32](in)
	case Int64:
		return convert[From, int64](in)
	case Bool:
		out := make([]bool, len(in))
		for i, v := range in {
			out[i] = v != 0
		}
		return out
	}
	return nil
}

// Cast converts t to another numeric dtype using Go conversion rules, so
// narrowing integer casts wrap around. Strings only cast to themselves.
func (t *Tensor) Cast(to DType) (*Tensor, error) {
	if t.dtype == to {
		return t, nil
	}
	if !t.dtype.IsNumeric() || !to.IsNumeric() {
		return nil, fmt.Errorf("cannot cast %s tensor to %s", t.dtype, to)
	}

	var data any
	switch t.dtype {
	case Float32:
		data = castNumeric(t.Float32s(), to)
	case Float64:
		data = castNumeric(t.Float64s(), to)
	case Int32:
		data = castNumeric(t.Int32s(), to)
	case Int64:
		data = castNumeric(t.Int64s(), to)
	case Bool:
		bools := t.Bools()
		ints := make([]int32, len(bools))
		for i, b := range bools {
			if b {
				ints[i] = 1
			}
		}
		data = castNumeric(ints, to)
	}
	return &Tensor{dtype: to, shape: slices.Clone(t.shape), data: data}, nil
}
