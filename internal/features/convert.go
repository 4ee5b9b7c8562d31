// internal/features/convert.go
package features

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// listArray is satisfied by *array.List and *array.LargeList.
type listArray interface {
	arrow.Array
	ListValues() arrow.Array
	ValueOffsets(i int) (start, end int64)
}

func isBinaryLike(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.STRING, arrow.LARGE_STRING:
		return true
	}
	return false
}

func isSupportedValueType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return isBinaryLike(dt)
}

// listElem returns the element type of list and large_list types.
func listElem(dt arrow.DataType) (arrow.DataType, bool) {
	switch t := dt.(type) {
	case *arrow.ListType:
		return t.Elem(), true
	case *arrow.LargeListType:
		return t.Elem(), true
	}
	return nil, false
}

func isSupportedColumn(dt arrow.DataType) bool {
	if elem, ok := listElem(dt); ok {
		return isSupportedValueType(elem)
	}
	return isSupportedValueType(dt)
}

// flattenBinaryList returns every value of a list-of-binary column in row order.
func flattenBinaryList(col arrow.Array) ([][]byte, error) {
	elem, ok := listElem(col.DataType())
	if !ok || !isBinaryLike(elem) {
		return nil, fmt.Errorf("got %s, expected list of binary like", col.DataType())
	}
	list := col.(listArray)
	values := list.ListValues()
	out := make([][]byte, 0, values.Len())
	for i := 0; i < list.Len(); i++ {
		if list.IsNull(i) {
			continue
		}
		lo, hi := list.ValueOffsets(i)
		for j := int(lo); j < int(hi); j++ {
			b, _ := bytesAt(values, j)
			out = append(out, b)
		}
	}
	return out, nil
}

func bytesAt(arr arrow.Array, i int) ([]byte, bool) {
	if arr.IsNull(i) {
		return nil, false
	}
	switch a := arr.(type) {
	case *array.Binary:
		return append([]byte(nil), a.Value(i)...), true
	case *array.LargeBinary:
		return append([]byte(nil), a.Value(i)...), true
	case *array.String:
		return []byte(a.Value(i)), true
	case *array.LargeString:
		return []byte(a.Value(i)), true
	}
	return nil, false
}

// valueRange converts arr[lo:hi] into a tensor of the given shape. It
// reports false if any element in the range is null.
func valueRange(arr arrow.Array, lo, hi int, shape []int) (*tensor.Tensor, bool, error) {
	for i := lo; i < hi; i++ {
		if arr.IsNull(i) {
			return nil, false, nil
		}
	}

	var (
		t   *tensor.Tensor
		err error
	)
	switch a := arr.(type) {
	case *array.Int8:
		t, err = tensor.FromInt32(shape, widen[int8, int32](lo, hi, a.Value))
	case *array.Int16:
		t, err = tensor.FromInt32(shape, widen[int16, int32](lo, hi, a.Value))
	case *array.Int32:
		t, err = tensor.FromInt32(shape, widen[int32, int32](lo, hi, a.Value))
	case *array.Uint8:
		t, err = tensor.FromInt32(shape, widen[uint8, int32](lo, hi, a.Value))
	case *array.Uint16:
		t, err = tensor.FromInt32(shape, widen[uint16, int32](lo, hi, a.Value))
	case *array.Int64:
		t, err = tensor.FromInt64(shape, widen[int64, int64](lo, hi, a.Value))
	case *array.Uint32:
		t, err = tensor.FromInt64(shape, widen[uint32, int64](lo, hi, a.Value))
	case *array.Uint64:
		t, err = tensor.FromInt64(shape, widen[uint64, int64](lo, hi, a.Value))
	case *array.Float16:
		vals := make([]float32, 0, hi-lo)
		for i := lo; i < hi; i++ {
			vals = append(vals, a.Value(i).Float32())
		}
		t, err = tensor.FromFloat32(shape, vals)
	case *array.Float32:
		t, err = tensor.FromFloat32(shape, widen[float32, float32](lo, hi, a.Value))
	case *array.Float64:
		t, err = tensor.FromFloat64(shape, widen[float64, float64](lo, hi, a.Value))
	default:
		if !isBinaryLike(arr.DataType()) {
			return nil, false, fmt.Errorf("unsupported arrow type %s", arr.DataType())
		}
		vals := make([][]byte, 0, hi-lo)
		for i := lo; i < hi; i++ {
			b, _ := bytesAt(arr, i)
			vals = append(vals, b)
		}
		t, err = tensor.FromStrings(shape, vals)
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

type numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func widen[From, To numeric](lo, hi int, at func(int) From) []To {
	out := make([]To, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, To(at(i)))
	}
	return out
}

// cellAt converts row i of a supported column into a tensor; nil means null.
func cellAt(col arrow.Array, i int) (*tensor.Tensor, error) {
	if col.IsNull(i) {
		return nil, nil
	}
	if list, ok := col.(listArray); ok {
		lo, hi := list.ValueOffsets(i)
		t, ok, err := valueRange(list.ListValues(), int(lo), int(hi), []int{int(hi - lo)})
		if err != nil || !ok {
			return nil, err
		}
		return t, nil
	}
	t, ok, err := valueRange(col, i, i+1, []int{})
	if err != nil || !ok {
		return nil, err
	}
	return t, nil
}
