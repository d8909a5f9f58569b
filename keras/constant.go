package keras

import (
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Constant emits a fixed tensor. It has no inbound connections; it stands
// in for source-graph constants that flow into regular layers or directly
// into a graph output.
type Constant struct {
	LayerBase
	Value *tensor.Tensor
}

// ClassName implements Layer.
func (l *Constant) ClassName() string { return "Constant" }

// Config implements Layer.
func (l *Constant) Config() map[string]any {
	return map[string]any{"dtype": l.Value.DType.String(), "dims": l.Value.Dims}
}

// Weights implements Layer.
func (l *Constant) Weights() []*tensor.Tensor { return []*tensor.Tensor{l.Value} }

// Call implements Layer.
func (l *Constant) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 0); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{l.Value}, nil
}
