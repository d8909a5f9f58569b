package keras

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Reduce collapses the given axes with mean, sum or max. The spatial
// global poolings cover the common cases; this layer handles the rest.
type Reduce struct {
	LayerBase
	Fn       string // "mean", "sum" or "max"
	Axes     []int  // normalized, ascending
	KeepDims bool
}

// ClassName implements Layer.
func (l *Reduce) ClassName() string { return "Reduce" }

// Config implements Layer.
func (l *Reduce) Config() map[string]any {
	return map[string]any{
		"function": l.Fn,
		"axes":     l.Axes,
		"keepdims": l.KeepDims,
	}
}

// Weights implements Layer.
func (l *Reduce) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Reduce) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	rank := x.Rank()
	reduced := make([]bool, rank)
	for _, a := range l.Axes {
		if a < 0 {
			a += rank
		}
		if a < 0 || a >= rank {
			return nil, errors.Errorf("layer %q (Reduce): axis out of range for input %s", l.Name(), x)
		}
		reduced[a] = true
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}

	outDims := make([]int, 0, rank)
	count := 1
	for axis, d := range x.Dims {
		if reduced[axis] {
			count *= d
			if l.KeepDims {
				outDims = append(outDims, 1)
			}
		} else {
			outDims = append(outDims, d)
		}
	}
	outSize := x.Size() / count
	out := make([]float32, outSize)
	seen := make([]bool, outSize)

	xStrides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		xStrides[axis] = stride
		stride *= x.Dims[axis]
	}
	for ii, v := range xData {
		dst := 0
		dstStride := 1
		for axis := rank - 1; axis >= 0; axis-- {
			coord := (ii / xStrides[axis]) % x.Dims[axis]
			if !reduced[axis] {
				dst += coord * dstStride
				dstStride *= x.Dims[axis]
			}
		}
		switch l.Fn {
		case "max":
			if !seen[dst] || v > out[dst] {
				out[dst] = v
			}
		default:
			out[dst] += v
		}
		seen[dst] = true
	}
	if l.Fn == "mean" {
		for ii := range out {
			out[ii] /= float32(count)
		}
	} else if l.Fn != "sum" && l.Fn != "max" {
		return nil, errors.Errorf("layer %q (Reduce): unknown function %q", l.Name(), l.Fn)
	}
	if len(outDims) == 0 {
		outDims = []int{1}
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims...)}, nil
}

// NormalizeAxes resolves negative axes against rank and returns them sorted.
func NormalizeAxes(axes []int, rank int) []int {
	out := make([]int, len(axes))
	for ii, a := range axes {
		if a < 0 {
			a += rank
		}
		out[ii] = a
	}
	sort.Ints(out)
	return out
}
