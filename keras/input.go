package keras

import (
	"github.com/ray0809/onnx-to-keras/tensor"
)

// InputLayer declares a model input: its shape (batch dimension as -1) and
// dtype. It produces exactly one tensor and has no inbound connections.
type InputLayer struct {
	LayerBase
	BatchShape []int
	DType      tensor.DType
}

// ClassName implements Layer.
func (l *InputLayer) ClassName() string { return "InputLayer" }

// Config implements Layer.
func (l *InputLayer) Config() map[string]any {
	return map[string]any{
		"batch_shape": l.BatchShape,
		"dtype":       l.DType.String(),
	}
}

// Weights implements Layer.
func (l *InputLayer) Weights() []*tensor.Tensor { return nil }

// Call implements Layer: the input placeholder passes its fed value through.
func (l *InputLayer) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	return inputs, nil
}
