package convert

import (
	"github.com/chewxy/math32"
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Constant materialization: nodes whose value is statically determined are
// folded into constants instead of layers, so that downstream operators with
// static-only arguments (reshape targets, pad amounts, resize scales) can be
// translated. The typical chain is Shape -> Gather -> Unsqueeze -> Concat ->
// Reshape.

// materialize folds the node into a constant value when possible and reports
// whether it did.
func (ctx *Context) materialize(node *protos.NodeProto) bool {
	switch node.OpType {
	case "Constant":
		ctx.setConst(node, 0, ctx.constantNodeValue(node))
		return true
	case "Shape":
		v := ctx.value(node, ctx.in(node, 0))
		info := v.shapeInfo()
		dims := info.Dims
		if info.Layout == ChannelsLast && len(dims) == 4 {
			// Report the shape in source axis order.
			dims = permuteDims(dims, permToChannelsFirst)
		}
		for _, d := range dims {
			if d < 0 {
				return false // Symbolic dimension, not statically known.
			}
		}
		data := make([]int64, len(dims))
		for ii, d := range dims {
			data[ii] = int64(d)
		}
		ctx.setConst(node, 0, tensor.FromInt64s(data, len(dims)))
		return true
	}

	if !foldableOps[node.OpType] {
		return false
	}
	for _, input := range node.Input {
		if input != "" && !ctx.isConst(input) {
			return false
		}
	}
	ctx.setConst(node, 0, ctx.foldNode(node))
	return true
}

var foldableOps = map[string]bool{
	"ConstantOfShape": true,
	"Identity":        true,
	"Cast":            true,
	"Gather":          true,
	"Slice":           true,
	"Concat":          true,
	"Unsqueeze":       true,
	"Squeeze":         true,
	"Reshape":         true,
	"Transpose":       true,
	"Add":             true,
	"Sub":             true,
	"Mul":             true,
	"Div":             true,
	"Sqrt":            true,
	"Floor":           true,
	"Neg":             true,
	"Abs":             true,
	"Exp":             true,
}

func (ctx *Context) constantNodeValue(node *protos.NodeProto) *tensor.Tensor {
	attr := onnx.GetNodeAttr(node, "value", false)
	if attr == nil {
		throwUnsupported(node, "only tensor-valued Constant nodes are supported")
	}
	if attr.Type != protos.AttributeProto_TENSOR {
		throwUnsupported(node, "only tensor-valued Constant nodes are supported, got attribute type %s", attr.Type)
	}
	t, err := tensor.FromProto(attr.T)
	if err != nil {
		throwShape(node, "invalid constant value: %v", err)
	}
	return t
}

func (ctx *Context) foldNode(node *protos.NodeProto) *tensor.Tensor {
	switch node.OpType {
	case "ConstantOfShape":
		return ctx.foldConstantOfShape(node)
	case "Identity":
		return ctx.constInput(node, 0)
	case "Cast":
		return ctx.foldCast(node)
	case "Gather":
		return ctx.foldGather(node)
	case "Slice":
		return ctx.foldSlice(node)
	case "Concat":
		return ctx.foldConcat(node)
	case "Unsqueeze":
		return ctx.foldSqueezeLike(node, false)
	case "Squeeze":
		return ctx.foldSqueezeLike(node, true)
	case "Reshape":
		return ctx.foldReshape(node)
	case "Transpose":
		return ctx.foldTranspose(node)
	case "Add", "Sub", "Mul", "Div":
		return ctx.foldBinary(node)
	case "Sqrt", "Floor", "Neg", "Abs", "Exp":
		return ctx.foldUnary(node)
	}
	throwShape(node, "operator is not constant-foldable")
	return nil
}

func (ctx *Context) foldConstantOfShape(node *protos.NodeProto) *tensor.Tensor {
	dims := ctx.constInts(node, 0)
	size := 1
	for _, d := range dims {
		size *= d
	}
	if attr := onnx.GetNodeAttr(node, "value", false); attr != nil {
		fill, err := tensor.FromProto(attr.T)
		if err != nil {
			throwShape(node, "invalid fill value: %v", err)
		}
		switch {
		case fill.Int64s != nil:
			data := make([]int64, size)
			for ii := range data {
				data[ii] = fill.Int64s[0]
			}
			t := tensor.FromInt64s(data, dims...)
			t.DType = fill.DType
			return t
		case fill.Float32s != nil:
			data := make([]float32, size)
			for ii := range data {
				data[ii] = fill.Float32s[0]
			}
			return tensor.FromFloat32s(data, dims...)
		default:
			throwUnsupported(node, "unsupported fill value dtype %s", fill.DType)
		}
	}
	return tensor.FromFloat32s(make([]float32, size), dims...)
}

func (ctx *Context) foldCast(node *protos.NodeProto) *tensor.Tensor {
	in := ctx.constInput(node, 0)
	to, err := tensor.DTypeFromONNX(protos.TensorProto_DataType(onnx.MustGetIntAttr(node, "to")))
	if err != nil {
		throwUnsupported(node, "%v", err)
	}
	if to.IsInt() {
		if in.Int64s != nil {
			out := tensor.FromInt64s(in.Int64s, in.Dims...)
			out.DType = to
			return out
		}
		data, err := in.Floats()
		if err != nil {
			throwShape(node, "%v", err)
		}
		ints := make([]int64, len(data))
		for ii, v := range data {
			ints[ii] = int64(v)
		}
		out := tensor.FromInt64s(ints, in.Dims...)
		out.DType = to
		return out
	}
	data, err := in.Floats()
	if err != nil {
		throwShape(node, "%v", err)
	}
	return tensor.FromFloat32s(data, in.Dims...)
}

func (ctx *Context) foldGather(node *protos.NodeProto) *tensor.Tensor {
	data := ctx.constInput(node, 0)
	indices := ctx.constInts(node, 1)
	indicesRank := ctx.constInput(node, 1).Rank()
	axis := onnx.GetIntAttrOr(node, "axis", 0)
	if axis < 0 {
		axis += data.Rank()
	}
	if axis < 0 || axis >= data.Rank() {
		throwShape(node, "gather axis out of range for %s", data)
	}

	inner := 1
	for _, d := range data.Dims[axis+1:] {
		inner *= d
	}
	outer := data.Size() / (data.Dims[axis] * inner)
	gatherTo := func(dst, src []int64, fdst, fsrc []float32) {
		for o := 0; o < outer; o++ {
			for ii, idx := range indices {
				if idx < 0 {
					idx += data.Dims[axis]
				}
				if idx < 0 || idx >= data.Dims[axis] {
					throwShape(node, "gather index %d out of range for %s", idx, data)
				}
				from := (o*data.Dims[axis] + idx) * inner
				to := (o*len(indices) + ii) * inner
				if src != nil {
					copy(dst[to:to+inner], src[from:from+inner])
				} else {
					copy(fdst[to:to+inner], fsrc[from:from+inner])
				}
			}
		}
	}

	outDims := make([]int, 0, data.Rank())
	outDims = append(outDims, data.Dims[:axis]...)
	if indicesRank > 0 {
		outDims = append(outDims, len(indices))
	}
	outDims = append(outDims, data.Dims[axis+1:]...)
	size := outer * len(indices) * inner

	if data.Int64s != nil {
		out := make([]int64, size)
		gatherTo(out, data.Int64s, nil, nil)
		t := tensor.FromInt64s(out, outDims...)
		t.DType = data.DType
		return t
	}
	src, err := data.Floats()
	if err != nil {
		throwShape(node, "%v", err)
	}
	out := make([]float32, size)
	gatherTo(nil, nil, out, src)
	return tensor.FromFloat32s(out, outDims...)
}

// sliceParams reads starts/ends/axes/steps from attributes (opset 1) or
// constant inputs (opset 10+).
func (ctx *Context) sliceParams(node *protos.NodeProto, rank int) (starts, ends, steps []int) {
	var axes, rawStarts, rawEnds, rawSteps []int
	if len(node.Input) > 1 {
		rawStarts = ctx.constInts(node, 1)
		rawEnds = ctx.constInts(node, 2)
		if ctx.in(node, 3) != "" {
			axes = ctx.constInts(node, 3)
		}
		if ctx.in(node, 4) != "" {
			rawSteps = ctx.constInts(node, 4)
		}
	} else {
		rawStarts = onnx.MustGetIntsAttr(node, "starts")
		rawEnds = onnx.MustGetIntsAttr(node, "ends")
		axes = onnx.GetIntsAttrOr(node, "axes", nil)
	}
	if axes == nil {
		axes = make([]int, len(rawStarts))
		for ii := range axes {
			axes[ii] = ii
		}
	}

	starts = make([]int, rank)
	ends = make([]int, rank)
	steps = make([]int, rank)
	for axis := 0; axis < rank; axis++ {
		ends[axis] = int(^uint(0) >> 1) // Whole axis by default.
		steps[axis] = 1
	}
	for ii, axis := range axes {
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			throwShape(node, "slice axis out of range for rank %d", rank)
		}
		starts[axis] = rawStarts[ii]
		ends[axis] = rawEnds[ii]
		if rawSteps != nil {
			steps[axis] = rawSteps[ii]
		}
	}
	return starts, ends, steps
}

func (ctx *Context) foldSlice(node *protos.NodeProto) *tensor.Tensor {
	data := ctx.constInput(node, 0)
	starts, ends, steps := ctx.sliceParams(node, data.Rank())
	if data.Int64s == nil {
		throwUnsupported(node, "constant slice is only folded for integer tensors")
	}
	if data.Rank() != 1 {
		throwUnsupported(node, "constant slice is only folded for rank-1 tensors, got %s", data)
	}
	dim := data.Dims[0]
	start := clampSliceIndex(starts[0], dim)
	end := clampSliceIndex(ends[0], dim)
	step := steps[0]
	if step <= 0 {
		throwUnsupported(node, "non-positive slice step")
	}
	var out []int64
	for ii := start; ii < end; ii += step {
		out = append(out, data.Int64s[ii])
	}
	t := tensor.FromInt64s(out, len(out))
	t.DType = data.DType
	return t
}

func clampSliceIndex(idx, dim int) int {
	if idx < 0 {
		idx += dim
	}
	if idx < 0 {
		return 0
	}
	if idx > dim {
		return dim
	}
	return idx
}

func (ctx *Context) foldConcat(node *protos.NodeProto) *tensor.Tensor {
	axis := onnx.MustGetIntAttr(node, "axis")
	first := ctx.constInput(node, 0)
	if first.Rank() != 1 || axis != 0 && axis != -1 {
		throwUnsupported(node, "constant concat is only folded for rank-1 tensors")
	}
	if first.Int64s != nil {
		var out []int64
		for ii := range node.Input {
			t := ctx.constInput(node, ii)
			out = append(out, t.Int64s...)
		}
		t := tensor.FromInt64s(out, len(out))
		t.DType = first.DType
		return t
	}
	var out []float32
	for ii := range node.Input {
		data, err := ctx.constInput(node, ii).Floats()
		if err != nil {
			throwShape(node, "%v", err)
		}
		out = append(out, data...)
	}
	return tensor.FromFloat32s(out, len(out))
}

func (ctx *Context) foldSqueezeLike(node *protos.NodeProto, squeeze bool) *tensor.Tensor {
	in := ctx.constInput(node, 0)
	axes := onnx.GetIntsAttrOr(node, "axes", nil)
	if axes == nil && len(node.Input) > 1 {
		axes = ctx.constInts(node, 1)
	}
	dims := squeezeDims(node, in.Dims, axes, squeeze)
	out, err := in.Reshape(dims...)
	if err != nil {
		throwShape(node, "%v", err)
	}
	return out
}

func (ctx *Context) foldReshape(node *protos.NodeProto) *tensor.Tensor {
	in := ctx.constInput(node, 0)
	target := ctx.constInts(node, 1)
	dims := resolveReshapeDims(node, in.Dims, in.Size(), target)
	out, err := in.Reshape(dims...)
	if err != nil {
		throwShape(node, "%v", err)
	}
	return out
}

func (ctx *Context) foldTranspose(node *protos.NodeProto) *tensor.Tensor {
	in := ctx.constInput(node, 0)
	perm := onnx.GetIntsAttrOr(node, "perm", nil)
	if perm == nil {
		perm = make([]int, in.Rank())
		for ii := range perm {
			perm[ii] = in.Rank() - 1 - ii
		}
	}
	out, err := in.Transpose(perm...)
	if err != nil {
		throwShape(node, "%v", err)
	}
	return out
}

func (ctx *Context) foldBinary(node *protos.NodeProto) *tensor.Tensor {
	a := ctx.constInput(node, 0)
	b := ctx.constInput(node, 1)
	var fn func(x, y float32) float32
	var ifn func(x, y int64) int64
	switch node.OpType {
	case "Add":
		fn = func(x, y float32) float32 { return x + y }
		ifn = func(x, y int64) int64 { return x + y }
	case "Sub":
		fn = func(x, y float32) float32 { return x - y }
		ifn = func(x, y int64) int64 { return x - y }
	case "Mul":
		fn = func(x, y float32) float32 { return x * y }
		ifn = func(x, y int64) int64 { return x * y }
	case "Div":
		fn = func(x, y float32) float32 { return x / y }
		ifn = func(x, y int64) int64 { return x / y }
	}

	if a.Int64s != nil && b.Int64s != nil {
		dims, av, bv := alignForFold(node, a.Dims, b.Dims, a.Int64s, b.Int64s)
		out := make([]int64, len(av))
		for ii := range out {
			out[ii] = ifn(av[ii], bv[ii])
		}
		t := tensor.FromInt64s(out, dims...)
		t.DType = a.DType
		return t
	}
	af, err := a.Floats()
	if err != nil {
		throwShape(node, "%v", err)
	}
	bf, err := b.Floats()
	if err != nil {
		throwShape(node, "%v", err)
	}
	dims, av, bv := alignForFold(node, a.Dims, b.Dims, af, bf)
	out := make([]float32, len(av))
	for ii := range out {
		out[ii] = fn(av[ii], bv[ii])
	}
	return tensor.FromFloat32s(out, dims...)
}

// alignForFold handles the two broadcast forms folding needs: identical
// shapes and a scalar operand.
func alignForFold[T int64 | float32](node *protos.NodeProto, aDims, bDims []int, a, b []T) ([]int, []T, []T) {
	if len(a) == len(b) {
		return aDims, a, b
	}
	if len(b) == 1 {
		bb := make([]T, len(a))
		for ii := range bb {
			bb[ii] = b[0]
		}
		return aDims, a, bb
	}
	if len(a) == 1 {
		aa := make([]T, len(b))
		for ii := range aa {
			aa[ii] = a[0]
		}
		return bDims, aa, b
	}
	throwShape(node, "cannot fold operands of shapes %v and %v", aDims, bDims)
	return nil, nil, nil
}

func (ctx *Context) foldUnary(node *protos.NodeProto) *tensor.Tensor {
	in := ctx.constInput(node, 0)
	if node.OpType == "Neg" && in.Int64s != nil {
		out := make([]int64, len(in.Int64s))
		for ii, v := range in.Int64s {
			out[ii] = -v
		}
		t := tensor.FromInt64s(out, in.Dims...)
		t.DType = in.DType
		return t
	}
	data, err := in.Floats()
	if err != nil {
		throwShape(node, "%v", err)
	}
	var fn func(float32) float32
	switch node.OpType {
	case "Sqrt":
		fn = math32.Sqrt
	case "Floor":
		fn = math32.Floor
	case "Neg":
		fn = func(v float32) float32 { return -v }
	case "Abs":
		fn = math32.Abs
	case "Exp":
		fn = math32.Exp
	}
	out := make([]float32, len(data))
	for ii, v := range data {
		out[ii] = fn(v)
	}
	return tensor.FromFloat32s(out, in.Dims...)
}

// constInts reads a constant input as an int slice, for static shape-like
// arguments.
func (ctx *Context) constInts(node *protos.NodeProto, i int) []int {
	t := ctx.constInput(node, i)
	out, err := t.Ints()
	if err != nil {
		throwShape(node, "input #%d must be integer: %v", i, err)
	}
	return out
}
