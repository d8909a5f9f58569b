package keras

import (
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Dense is a fully-connected layer over the last axis.
// Kernel layout: (inFeatures, units).
type Dense struct {
	LayerBase
	Units   int
	UseBias bool

	Kernel *tensor.Tensor
	Bias   *tensor.Tensor
}

// ClassName implements Layer.
func (l *Dense) ClassName() string { return "Dense" }

// Config implements Layer.
func (l *Dense) Config() map[string]any {
	return map[string]any{
		"units":    l.Units,
		"use_bias": l.UseBias,
	}
}

// Weights implements Layer.
func (l *Dense) Weights() []*tensor.Tensor {
	if l.UseBias {
		return []*tensor.Tensor{l.Kernel, l.Bias}
	}
	return []*tensor.Tensor{l.Kernel}
}

// Call implements Layer.
func (l *Dense) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 1 {
		return nil, errors.Errorf("layer %q (Dense) expects at least rank-1 input, got %s", l.Name(), x)
	}
	inFeatures := x.Dims[x.Rank()-1]
	if inFeatures != l.Kernel.Dims[0] {
		return nil, errors.Errorf("layer %q (Dense) expects %d input features, got %s", l.Name(), l.Kernel.Dims[0], x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	kData, err := floats(l, l.Kernel)
	if err != nil {
		return nil, err
	}
	var bias []float32
	if l.UseBias {
		if bias, err = floats(l, l.Bias); err != nil {
			return nil, err
		}
	}

	rows := x.Size() / inFeatures
	out := make([]float32, rows*l.Units)
	for r := 0; r < rows; r++ {
		for u := 0; u < l.Units; u++ {
			var acc float32
			for f := 0; f < inFeatures; f++ {
				acc += xData[r*inFeatures+f] * kData[f*l.Units+u]
			}
			if bias != nil {
				acc += bias[u]
			}
			out[r*l.Units+u] = acc
		}
	}
	outDims := append(append([]int{}, x.Dims[:x.Rank()-1]...), l.Units)
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims...)}, nil
}

// Flatten collapses all non-batch axes into one.
type Flatten struct {
	LayerBase
}

// ClassName implements Layer.
func (l *Flatten) ClassName() string { return "Flatten" }

// Config implements Layer.
func (l *Flatten) Config() map[string]any { return map[string]any{} }

// Weights implements Layer.
func (l *Flatten) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Flatten) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 1 {
		return nil, errors.Errorf("layer %q (Flatten) expects at least rank-1 input, got %s", l.Name(), x)
	}
	out, err := x.Reshape(x.Dims[0], x.Size()/x.Dims[0])
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}
