// internal/extract/prediction.go
package extract

import (
	"encoding/json"
	"fmt"

	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// Prediction is a per-row model result: either a bare value or a mapping
// keyed by output name (multi-output models) or model name (multi-model
// evaluation). Exactly one of Value and Fields is set.
type Prediction struct {
	Value  *tensor.Tensor
	Fields map[string]*Prediction
}

func (p *Prediction) MarshalJSON() ([]byte, error) {
	if p.Fields != nil {
		return json.Marshal(p.Fields)
	}
	return json.Marshal(p.Value)
}

// NamedTensor pairs a model input or output with its name.
type NamedTensor struct {
	Name   string
	Tensor *tensor.Tensor
}

// MergeOutputs distributes one model's batched outputs over the rows of preds.
//
// Every output must have rows as its leading dimension. A single-output model
// yields the bare per-row value, otherwise a mapping by output name. With
// multiModel unset the row values are appended to preds; with it set, row i
// of preds becomes (or stays) a mapping and gains the entry modelName.
func MergeOutputs(preds []*Prediction, outputs []NamedTensor, rows int, modelName string, multiModel bool) ([]*Prediction, error) {
	for _, out := range outputs {
		n, err := out.Tensor.Dim0()
		if err != nil || n != rows {
			return nil, fmt.Errorf("%w: output %q has shape %v for %d rows",
				ErrRowCountMismatch, out.Name, out.Tensor.Shape(), rows)
		}
	}

	for i := 0; i < rows; i++ {
		var row *Prediction
		if len(outputs) == 1 {
			v, err := outputs[0].Tensor.Row(i)
			if err != nil {
				return nil, err
			}
			row = &Prediction{Value: v}
		} else {
			row = &Prediction{Fields: make(map[string]*Prediction, len(outputs))}
			for _, out := range outputs {
				v, err := out.Tensor.Row(i)
				if err != nil {
					return nil, err
				}
				row.Fields[out.Name] = &Prediction{Value: v}
			}
		}

		if !multiModel {
			preds = append(preds, row)
			continue
		}
		if i >= len(preds) {
			preds = append(preds, &Prediction{Fields: map[string]*Prediction{}})
		}
		if preds[i].Fields == nil {
			preds[i].Fields = map[string]*Prediction{}
		}
		preds[i].Fields[modelName] = row
	}
	return preds, nil
}
