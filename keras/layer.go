// Package keras implements the target model representation: a functional
// composition of named layer objects, each carrying its configuration, its
// (already permuted) weights and its named input/output connections.
//
// All spatial layers follow the channels-last convention (NHWC), matching
// tf.keras defaults. Each layer also implements a reference forward kernel
// so converted models can be executed and verified numerically; the kernels
// favor clarity over speed.
package keras

import (
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Layer is one unit of the target model. Layers are immutable after
// construction; they are wired by tensor name.
type Layer interface {
	// Name is the unique layer name within the model.
	Name() string
	// ClassName is the Keras layer class this corresponds to.
	ClassName() string
	// Config returns the serializable layer configuration (weights excluded).
	Config() map[string]any
	// Weights returns the layer's weight tensors in Keras order.
	Weights() []*tensor.Tensor
	// Inbound/Outbound are the names of the tensors this layer consumes and
	// produces.
	Inbound() []string
	Outbound() []string
	// Call runs the reference forward kernel.
	Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// LayerBase carries the naming and wiring shared by all layers.
type LayerBase struct {
	LayerName     string
	InputTensors  []string
	OutputTensors []string
}

// Name implements Layer.
func (b *LayerBase) Name() string { return b.LayerName }

// Inbound implements Layer.
func (b *LayerBase) Inbound() []string { return b.InputTensors }

// Outbound implements Layer.
func (b *LayerBase) Outbound() []string { return b.OutputTensors }

// Padding is the spatial padding mode of convolution/pooling layers.
type Padding string

const (
	PaddingValid Padding = "valid"
	PaddingSame  Padding = "same"
)

// checkArity verifies the number of inputs handed to a kernel.
func checkArity(l Layer, inputs []*tensor.Tensor, want int) error {
	if len(inputs) != want {
		return errors.Errorf("layer %q (%s) expects %d inputs, got %d", l.Name(), l.ClassName(), want, len(inputs))
	}
	return nil
}

// floats pulls the float32 data of a kernel input.
func floats(l Layer, t *tensor.Tensor) ([]float32, error) {
	data, err := t.Floats()
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q (%s)", l.Name(), l.ClassName())
	}
	return data, nil
}

// spatialPair widens a scalar or single-element slice to a (h, w) pair.
func spatialPair(v []int) [2]int {
	switch len(v) {
	case 0:
		return [2]int{1, 1}
	case 1:
		return [2]int{v[0], v[0]}
	default:
		return [2]int{v[0], v[1]}
	}
}
