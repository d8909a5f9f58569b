package keras

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// ReLU clamps values below zero; with MaxValue set it also clamps above it
// (the Keras form of a clip with a zero lower bound).
type ReLU struct {
	LayerBase
	MaxValue float32 // 0 means unbounded
	HasMax   bool
}

// ClassName implements Layer.
func (l *ReLU) ClassName() string { return "ReLU" }

// Config implements Layer.
func (l *ReLU) Config() map[string]any {
	cfg := map[string]any{}
	if l.HasMax {
		cfg["max_value"] = l.MaxValue
	}
	return cfg
}

// Weights implements Layer.
func (l *ReLU) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *ReLU) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return elementwiseCall(l, inputs, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		if l.HasMax && v > l.MaxValue {
			return l.MaxValue
		}
		return v
	})
}

// LeakyReLU scales negative values by Alpha.
type LeakyReLU struct {
	LayerBase
	Alpha float32
}

// ClassName implements Layer.
func (l *LeakyReLU) ClassName() string { return "LeakyReLU" }

// Config implements Layer.
func (l *LeakyReLU) Config() map[string]any { return map[string]any{"alpha": l.Alpha} }

// Weights implements Layer.
func (l *LeakyReLU) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *LeakyReLU) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return elementwiseCall(l, inputs, func(v float32) float32 {
		if v < 0 {
			return l.Alpha * v
		}
		return v
	})
}

// PReLU scales negative values by a learned per-channel alpha, broadcast
// against the input.
type PReLU struct {
	LayerBase
	Alpha *tensor.Tensor
}

// ClassName implements Layer.
func (l *PReLU) ClassName() string { return "PReLU" }

// Config implements Layer.
func (l *PReLU) Config() map[string]any { return map[string]any{} }

// Weights implements Layer.
func (l *PReLU) Weights() []*tensor.Tensor { return []*tensor.Tensor{l.Alpha} }

// Call implements Layer.
func (l *PReLU) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	alpha, err := floats(l, l.Alpha)
	if err != nil {
		return nil, err
	}
	outDims, ok := broadcastShape(x.Dims, l.Alpha.Dims)
	if !ok || len(outDims) != x.Rank() {
		return nil, errors.Errorf("layer %q (PReLU): alpha %s does not broadcast against input %s", l.Name(), l.Alpha, x)
	}
	out := make([]float32, len(xData))
	for ii, v := range xData {
		if v < 0 {
			out[ii] = alpha[broadcastIndex(ii, x.Dims, l.Alpha.Dims)] * v
		} else {
			out[ii] = v
		}
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, x.Dims...)}, nil
}

// Softmax normalizes along Axis (negative values count from the last axis).
type Softmax struct {
	LayerBase
	Axis int
}

// ClassName implements Layer.
func (l *Softmax) ClassName() string { return "Softmax" }

// Config implements Layer.
func (l *Softmax) Config() map[string]any { return map[string]any{"axis": l.Axis} }

// Weights implements Layer.
func (l *Softmax) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Softmax) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	axis := l.Axis
	if axis < 0 {
		axis += x.Rank()
	}
	if axis < 0 || axis >= x.Rank() {
		return nil, errors.Errorf("layer %q (Softmax): axis %d out of range for input %s", l.Name(), l.Axis, x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}

	dim := x.Dims[axis]
	inner := 1
	for _, d := range x.Dims[axis+1:] {
		inner *= d
	}
	outer := x.Size() / (dim * inner)
	out := make([]float32, len(xData))
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dim*inner + in
			m := xData[base]
			for ii := 1; ii < dim; ii++ {
				if v := xData[base+ii*inner]; v > m {
					m = v
				}
			}
			var sum float32
			for ii := 0; ii < dim; ii++ {
				e := math32.Exp(xData[base+ii*inner] - m)
				out[base+ii*inner] = e
				sum += e
			}
			for ii := 0; ii < dim; ii++ {
				out[base+ii*inner] /= sum
			}
		}
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, x.Dims...)}, nil
}

// Activation applies a named elementwise activation function.
type Activation struct {
	LayerBase
	Fn string // sigmoid, tanh, exponential, sqrt, abs, neg, floor, linear
}

// ClassName implements Layer.
func (l *Activation) ClassName() string { return "Activation" }

// Config implements Layer.
func (l *Activation) Config() map[string]any { return map[string]any{"activation": l.Fn} }

// Weights implements Layer.
func (l *Activation) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Activation) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	var fn func(float32) float32
	switch l.Fn {
	case "sigmoid":
		fn = func(v float32) float32 { return 1 / (1 + math32.Exp(-v)) }
	case "tanh":
		fn = math32.Tanh
	case "exponential":
		fn = math32.Exp
	case "sqrt":
		fn = math32.Sqrt
	case "abs":
		fn = math32.Abs
	case "neg":
		fn = func(v float32) float32 { return -v }
	case "floor":
		fn = math32.Floor
	case "linear":
		fn = func(v float32) float32 { return v }
	default:
		return nil, errors.Errorf("layer %q (Activation): unknown activation %q", l.Name(), l.Fn)
	}
	return elementwiseCall(l, inputs, fn)
}

func elementwiseCall(l Layer, inputs []*tensor.Tensor, fn func(float32) float32) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(xData))
	for ii, v := range xData {
		out[ii] = fn(v)
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, x.Dims...)}, nil
}
