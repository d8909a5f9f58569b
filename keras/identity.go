package keras

import (
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Identity forwards its input unchanged. It gives a declared model output
// its own tensor name when the producing layer emitted it under another one.
type Identity struct {
	LayerBase
}

// ClassName implements Layer.
func (l *Identity) ClassName() string { return "Identity" }

// Config implements Layer.
func (l *Identity) Config() map[string]any { return map[string]any{} }

// Weights implements Layer.
func (l *Identity) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Identity) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	return []*tensor.Tensor{inputs[0]}, nil
}
