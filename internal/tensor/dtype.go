// internal/tensor/dtype.go
package tensor

import (
	"fmt"
	"strings"
)

// DType is the element type of a Tensor.
type DType uint8

const (
	Invalid DType = iota
	Float32
	Float64
	Int32
	Int64
	Bool
	String
)

var dtypeNames = map[DType]string{
	Float32: "float32",
	Float64: "float64",
	Int32:   "int32",
	Int64:   "int64",
	Bool:    "bool",
	String:  "string",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// IsNumeric reports whether values of d can be cast between each other.
func (d DType) IsNumeric() bool {
	switch d {
	case Float32, Float64, Int32, Int64, Bool:
		return true
	}
	return false
}

// ParseDType accepts the dtype spellings used by model configs, numpy and TFJS.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "float", "dt_float":
		return Float32, nil
	case "float64", "double", "dt_double":
		return Float64, nil
	case "int32", "int", "dt_int32":
		return Int32, nil
	case "int64", "long", "dt_int64":
		return Int64, nil
	case "bool", "boolean", "dt_bool":
		return Bool, nil
	case "string", "bytes", "object", "dt_string":
		return String, nil
	}
	return Invalid, fmt.Errorf("unknown dtype %q", s)
}
