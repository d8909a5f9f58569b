package tensor

import (
	"github.com/pkg/errors"
)

// Transpose returns a new tensor with the axes permuted: output axis ii is
// input axis perm[ii]. The data is reordered accordingly.
func (t *Tensor) Transpose(perm ...int) (*Tensor, error) {
	if len(perm) != t.Rank() {
		return nil, errors.Errorf("transpose of %s needs one permutation entry per axis, got perm=%v", t, perm)
	}
	seen := make([]bool, len(perm))
	for _, axis := range perm {
		if axis < 0 || axis >= len(perm) || seen[axis] {
			return nil, errors.Errorf("invalid axes permutation %v for tensor %s", perm, t)
		}
		seen[axis] = true
	}

	newDims := make([]int, len(perm))
	for ii, axis := range perm {
		newDims[ii] = t.Dims[axis]
	}
	out := &Tensor{Name: t.Name, DType: t.DType, Dims: newDims}

	// Map every output flat index back to the input flat index.
	inStrides := strides(t.Dims)
	outStrides := strides(newDims)
	size := t.Size()
	mapping := make([]int, size)
	for outIdx := 0; outIdx < size; outIdx++ {
		rem := outIdx
		inIdx := 0
		for ii, stride := range outStrides {
			coord := rem / stride
			rem %= stride
			inIdx += coord * inStrides[perm[ii]]
		}
		mapping[outIdx] = inIdx
	}

	switch {
	case t.Float32s != nil:
		out.Float32s = permuteData(t.Float32s, mapping)
	case t.Float64s != nil:
		out.Float64s = permuteData(t.Float64s, mapping)
	case t.Int64s != nil:
		out.Int64s = permuteData(t.Int64s, mapping)
	case t.Bools != nil:
		out.Bools = permuteData(t.Bools, mapping)
	}
	return out, nil
}

// Reshape returns a view of the same data with new dimensions. The element
// count must be preserved.
func (t *Tensor) Reshape(dims ...int) (*Tensor, error) {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	if size != t.Size() {
		return nil, errors.Errorf("cannot reshape %s to %v: element counts differ", t, dims)
	}
	out := *t
	out.Dims = dims
	return &out, nil
}

// strides returns the row-major strides of the given dimensions.
func strides(dims []int) []int {
	out := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		out[axis] = stride
		stride *= dims[axis]
	}
	return out
}

func permuteData[T any](data []T, mapping []int) []T {
	out := make([]T, len(data))
	for outIdx, inIdx := range mapping {
		out[outIdx] = data[inIdx]
	}
	return out
}
