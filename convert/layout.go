package convert

import "github.com/ray0809/onnx-to-keras/tensor"

// Layout tags the axis convention of a tensor as it flows through the
// conversion. ONNX spatial tensors are channels-first (NCHW); the target
// layers want channels-last (NHWC). The tag is explicit on every tracked
// value and checked at every wiring point; a mismatch is resolved by
// inserting exactly one axis-permutation layer.
type Layout int

const (
	// Agnostic marks tensors with no spatial axis convention (non rank-4
	// values, flattened features, shape vectors).
	Agnostic Layout = iota
	// ChannelsFirst is the NCHW convention of the source graph.
	ChannelsFirst
	// ChannelsLast is the NHWC convention of the target layers.
	ChannelsLast
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case ChannelsFirst:
		return "channels_first"
	case ChannelsLast:
		return "channels_last"
	default:
		return "agnostic"
	}
}

// Axis permutations between the two rank-4 conventions.
var (
	permToChannelsLast  = []int{0, 2, 3, 1}
	permToChannelsFirst = []int{0, 3, 1, 2}
)

// ShapeInfo is the tracked shape, dtype and layout of one tensor. Dims
// follow the tensor's current physical order (so they change when a
// layout-conversion layer is inserted); -1 marks an unknown or symbolic
// dimension.
type ShapeInfo struct {
	Dims   []int
	DType  tensor.DType
	Layout Layout
}

// Rank returns the number of axes.
func (s ShapeInfo) Rank() int { return len(s.Dims) }

// Static reports whether every dimension is known.
func (s ShapeInfo) Static() bool {
	for _, d := range s.Dims {
		if d < 0 {
			return false
		}
	}
	return true
}

// permuteDims reorders dims by perm.
func permuteDims(dims, perm []int) []int {
	out := make([]int, len(dims))
	for ii, axis := range perm {
		out[ii] = dims[axis]
	}
	return out
}
