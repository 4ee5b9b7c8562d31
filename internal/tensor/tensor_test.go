// internal/tensor/tensor_test.go
package tensor

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensor_SizeMismatch(t *testing.T) {
	_, err := FromFloat32([]int{2, 2}, []float32{1, 2, 3})
	require.Error(t, err)

	_, err = FromInt64([]int{-1}, []int64{1})
	require.Error(t, err)
}

func TestReshape(t *testing.T) {
	x := Must(FromFloat32([]int{6}, []float32{1, 2, 3, 4, 5, 6}))

	y, err := x.Reshape([]int{-1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, y.Shape())
	assert.Equal(t, x.Float32s(), y.Float32s())

	_, err = x.Reshape([]int{4, -1})
	assert.Error(t, err)

	_, err = x.Reshape([]int{-1, -1})
	assert.Error(t, err)

	_, err = x.Reshape([]int{1, 1})
	assert.Error(t, err)

	s := Must(FromInt64([]int{}, []int64{7}))
	r, err := s.Reshape([]int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, r.Shape())
}

func TestRowAndConcat(t *testing.T) {
	a := Must(FromInt32([]int{1, 2}, []int32{1, 2}))
	b := Must(FromInt32([]int{2, 2}, []int32{3, 4, 5, 6}))

	c, err := Concat([]*Tensor{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, c.Shape())
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, c.Int32s())

	row, err := c.Row(2)
	require.NoError(t, err)
	assert.True(t, row.Equal(Must(FromInt32([]int{2}, []int32{5, 6}))))

	_, err = c.Row(3)
	assert.Error(t, err)

	// appending to a row view must not clobber the parent
	_ = append(row.Int32s(), 99)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, c.Int32s())
}

func TestConcat_Incompatible(t *testing.T) {
	a := Must(FromInt32([]int{1, 2}, []int32{1, 2}))
	b := Must(FromInt32([]int{1, 3}, []int32{1, 2, 3}))
	f := Must(FromFloat32([]int{1, 2}, []float32{1, 2}))

	_, err := Concat([]*Tensor{a, b})
	assert.Error(t, err)
	_, err = Concat([]*Tensor{a, f})
	assert.Error(t, err)
	_, err = Concat(nil)
	assert.Error(t, err)
}

func TestCast(t *testing.T) {
	x := Must(FromInt64([]int{3}, []int64{1, -2, 1 << 32}))

	y, err := x.Cast(Int32)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -2, 0}, y.Int32s())

	f, err := x.Cast(Float32)
	require.NoError(t, err)
	assert.Equal(t, Float32, f.DType())

	s := Must(FromStrings([]int{1}, [][]byte{[]byte("a")}))
	_, err = s.Cast(Float32)
	assert.Error(t, err)

	same, err := s.Cast(String)
	require.NoError(t, err)
	assert.Same(t, s, same)
}

func TestFilled(t *testing.T) {
	f, err := Filled(Float32, []int{1, 2}, -1)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -1}, f.Float32s())

	s, err := Filled(String, []int{1, 1}, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{}}, s.Strings())
}

func TestMarshalJSON(t *testing.T) {
	x := Must(FromFloat32([]int{2, 2}, []float32{1, 2, 3, 4}))
	b, err := json.Marshal(x)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,2],[3,4]]`, string(b))

	s := Must(FromStrings([]int{}, [][]byte{[]byte("hi")}))
	b, err = json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(b))

	e := Must(FromInt32([]int{0}, nil))
	b, err = json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}

func TestMarshalJSON_NonFinite(t *testing.T) {
	nan := float32(math.NaN())
	x := Must(FromFloat32([]int{2, 2}, []float32{1, nan, float32(math.Inf(1)), 4}))
	b, err := json.Marshal(x)
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,null],[null,4]]`, string(b))

	s := Must(FromFloat64([]int{}, []float64{math.Inf(-1)}))
	b, err = json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(b))
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{
		"float32": Float32,
		"DT_INT64": Int64,
		"int32":   Int32,
		"bool":    Bool,
		"string":  String,
	} {
		got, err := ParseDType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDType("complex64")
	assert.Error(t, err)
}
