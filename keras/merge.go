package keras

import (
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Binary merge layers with numpy-style broadcasting. Keras only broadcasts
// same-rank inputs in its merge layers; the converter prepends axes before
// wiring, so the kernels here accept general right-aligned broadcasting.

type mergeOp struct {
	LayerBase
	class string
	fn    func(a, b float32) float32

	// Const, when set, is a baked operand: the layer takes a single runtime
	// input and the constant supplies the other side. ConstFirst puts the
	// constant on the left of non-commutative ops.
	Const      *tensor.Tensor
	ConstFirst bool
}

// ClassName implements Layer.
func (l *mergeOp) ClassName() string { return l.class }

// Config implements Layer.
func (l *mergeOp) Config() map[string]any {
	if l.Const != nil {
		return map[string]any{"const_first": l.ConstFirst}
	}
	return map[string]any{}
}

// Weights implements Layer.
func (l *mergeOp) Weights() []*tensor.Tensor {
	if l.Const != nil {
		return []*tensor.Tensor{l.Const}
	}
	return nil
}

// Call implements Layer.
func (l *mergeOp) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	var a, b *tensor.Tensor
	if l.Const != nil {
		if err := checkArity(l, inputs, 1); err != nil {
			return nil, err
		}
		a, b = inputs[0], l.Const
		if l.ConstFirst {
			a, b = b, a
		}
	} else {
		if err := checkArity(l, inputs, 2); err != nil {
			return nil, err
		}
		a, b = inputs[0], inputs[1]
	}
	outDims, ok := broadcastShape(a.Dims, b.Dims)
	if !ok {
		return nil, errors.Errorf("layer %q (%s): shapes %v and %v do not broadcast", l.Name(), l.class, a.Dims, b.Dims)
	}
	aData, err := floats(l, a)
	if err != nil {
		return nil, err
	}
	bData, err := floats(l, b)
	if err != nil {
		return nil, err
	}
	size := 1
	for _, d := range outDims {
		size *= d
	}
	out := make([]float32, size)
	for ii := range out {
		av := aData[broadcastIndex(ii, outDims, a.Dims)]
		bv := bData[broadcastIndex(ii, outDims, b.Dims)]
		out[ii] = l.fn(av, bv)
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims...)}, nil
}

// NewBinaryOp builds one of the elementwise merge layers: "Add", "Subtract",
// "Multiply", "Divide" or "Equal" (comparison emits 1.0/0.0). With a non-nil
// constOperand the layer takes a single runtime input; constFirst places the
// constant as the left operand.
func NewBinaryOp(base LayerBase, class string, constOperand *tensor.Tensor, constFirst bool) (Layer, error) {
	var fn func(a, b float32) float32
	switch class {
	case "Add":
		fn = func(a, b float32) float32 { return a + b }
	case "Subtract":
		fn = func(a, b float32) float32 { return a - b }
	case "Multiply":
		fn = func(a, b float32) float32 { return a * b }
	case "Divide":
		fn = func(a, b float32) float32 { return a / b }
	case "Equal":
		fn = func(a, b float32) float32 {
			if a == b {
				return 1
			}
			return 0
		}
	default:
		return nil, errors.Errorf("unknown binary layer class %q", class)
	}
	return &mergeOp{LayerBase: base, class: class, fn: fn, Const: constOperand, ConstFirst: constFirst}, nil
}

// Concatenate joins inputs along Axis (counting the batch axis; negative
// counts from the end).
type Concatenate struct {
	LayerBase
	Axis int
}

// ClassName implements Layer.
func (l *Concatenate) ClassName() string { return "Concatenate" }

// Config implements Layer.
func (l *Concatenate) Config() map[string]any { return map[string]any{"axis": l.Axis} }

// Weights implements Layer.
func (l *Concatenate) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Concatenate) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) < 2 {
		return nil, errors.Errorf("layer %q (Concatenate) needs at least 2 inputs, got %d", l.Name(), len(inputs))
	}
	rank := inputs[0].Rank()
	axis := l.Axis
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, errors.Errorf("layer %q (Concatenate): axis %d out of range for rank %d", l.Name(), l.Axis, rank)
	}

	outDims := append([]int{}, inputs[0].Dims...)
	outDims[axis] = 0
	for _, in := range inputs {
		if in.Rank() != rank {
			return nil, errors.Errorf("layer %q (Concatenate): rank mismatch between inputs", l.Name())
		}
		outDims[axis] += in.Dims[axis]
	}

	inner := 1
	for _, d := range outDims[axis+1:] {
		inner *= d
	}
	outer := 1
	for _, d := range outDims[:axis] {
		outer *= d
	}

	size := outer * outDims[axis] * inner
	out := make([]float32, size)
	offset := 0
	for _, in := range inputs {
		data, err := floats(l, in)
		if err != nil {
			return nil, err
		}
		block := in.Dims[axis] * inner
		for o := 0; o < outer; o++ {
			copy(out[(o*outDims[axis]+offset)*inner:], data[o*block:(o+1)*block])
		}
		offset += in.Dims[axis]
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims...)}, nil
}
