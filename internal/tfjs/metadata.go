// internal/tfjs/metadata.go

// Package tfjs runs TensorFlow.js models through an external inference
// binary that exchanges tensors as JSON files.
package tfjs

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// TensorShape is one named signature tensor with its declared dimensions.
// Unknown dimensions are -1.
type TensorShape struct {
	Name string
	Dims []int
}

// Signature lists the inputs and outputs of a model in document order.
type Signature struct {
	Inputs  []TensorShape
	Outputs []TensorShape
}

// ParseModelJSON reads the signature of a TFJS model.json. The signature is
// looked up under userDefinedMetadata first, then at the top level.
func ParseModelJSON(data []byte) (*Signature, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("model.json is not valid JSON")
	}
	sig := gjson.GetBytes(data, "userDefinedMetadata.signature")
	if !sig.Exists() {
		sig = gjson.GetBytes(data, "signature")
	}
	if !sig.Exists() {
		return nil, fmt.Errorf("model.json has no signature")
	}

	inputs, err := tensorShapes(sig.Get("inputs"))
	if err != nil {
		return nil, fmt.Errorf("signature inputs: %w", err)
	}
	outputs, err := tensorShapes(sig.Get("outputs"))
	if err != nil {
		return nil, fmt.Errorf("signature outputs: %w", err)
	}
	return &Signature{Inputs: inputs, Outputs: outputs}, nil
}

func tensorShapes(r gjson.Result) ([]TensorShape, error) {
	if !r.IsObject() {
		return nil, fmt.Errorf("expected an object, got %s", r.Type)
	}
	var (
		out []TensorShape
		err error
	)
	r.ForEach(func(key, value gjson.Result) bool {
		var dims []int
		for _, d := range value.Get("tensorShape.dim").Array() {
			size := d.Get("size")
			if !size.Exists() {
				err = fmt.Errorf("tensor %q: dimension without size", key.String())
				return false
			}
			// sizes are int64 in the proto and so serialized as strings
			dims = append(dims, int(size.Int()))
		}
		out = append(out, TensorShape{Name: key.String(), Dims: dims})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// baseName drops the output index suffix of a signature tensor name.
func baseName(name string) string {
	n, _, _ := strings.Cut(name, ":")
	return n
}
