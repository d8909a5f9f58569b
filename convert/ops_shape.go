package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("Reshape", convertReshape)
	registerOp("Transpose", convertTranspose)
	registerOp("Squeeze", makeSqueezeLike(true))
	registerOp("Unsqueeze", makeSqueezeLike(false))
	registerOp("Concat", convertConcat)
	registerOp("Slice", convertSlice)
	registerOp("Split", convertSplit)
	registerOp("Pad", convertPad)
	registerOp("Expand", convertExpand)
	registerOp("Cast", convertCast)
	registerOp("Shape", convertShape)
	registerOp("Gather", convertGather)
	registerOp("Constant", convertConstant)
	registerOp("ConstantOfShape", convertConstantOfShape)
}

// Constant nodes are always folded by the materializer; reaching the
// translator means the value attribute was unusable.
func convertConstant(ctx *Context, node *protos.NodeProto) {
	throwUnsupported(node, "non-tensor constant value")
}

// ConstantOfShape reaches the translator only when its shape input is
// runtime data.
func convertConstantOfShape(ctx *Context, node *protos.NodeProto) {
	panic(&DynamicShapeUnsupportedError{NodeName: node.Name, OpType: node.OpType, TensorName: ctx.in(node, 0)})
}

// rankLayout tags a reshaped result: rank-4 data in raw source order is
// channels-first, anything else has no spatial convention.
func rankLayout(dims []int) Layout {
	if len(dims) == 4 {
		return ChannelsFirst
	}
	return Agnostic
}

// resolveReshapeDims expands the ONNX reshape target: 0 copies the input
// dimension, a single -1 is inferred from the element count.
func resolveReshapeDims(node *protos.NodeProto, inDims []int, inSize int, target []int) []int {
	dims := make([]int, len(target))
	known := 1
	wildcard := -1
	for ii, d := range target {
		switch {
		case d == 0:
			if ii >= len(inDims) {
				throwShape(node, "target dim %d copies a nonexistent input axis", ii)
			}
			dims[ii] = inDims[ii]
		case d == -1:
			if wildcard >= 0 {
				throwShape(node, "more than one -1 in reshape target %v", target)
			}
			wildcard = ii
			dims[ii] = -1
			continue
		default:
			dims[ii] = d
		}
		if dims[ii] > 0 {
			known *= dims[ii]
		} else {
			known = -1
		}
	}
	if wildcard >= 0 && known > 0 && inSize > 0 && inSize%known == 0 {
		dims[wildcard] = inSize / known
	}
	return dims
}

func sizeOf(dims []int) int {
	size := 1
	for _, d := range dims {
		if d < 0 {
			return -1
		}
		size *= d
	}
	return size
}

// The reshape target is expressed in source axis order, so the input is
// first brought back to it.
func convertReshape(ctx *Context, node *protos.NodeProto) {
	target := ctx.constInts(node, 1)
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)
	dims := resolveReshapeDims(node, xDims, sizeOf(xDims), target)
	if len(dims) == 0 {
		throwUnsupported(node, "reshape to a scalar")
	}
	if dims[0] != xDims[0] && dims[0] != -1 && xDims[0] != -1 {
		throwUnsupported(node, "reshape across the batch axis: %v -> %v", xDims, dims)
	}

	// The layer keeps the batch axis; express the rest, inferring at most
	// one unknown.
	rest := make([]int, len(dims)-1)
	unknown := 0
	for ii, d := range dims[1:] {
		rest[ii] = d
		if d < 0 {
			rest[ii] = -1
			unknown++
		}
	}
	if unknown > 1 {
		throwShape(node, "cannot resolve reshape target %v with input %v", target, xDims)
	}
	ctx.emit(&keras.Reshape{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		TargetShape: rest,
	})
	outDims := append([]int{xDims[0]}, rest...)
	ctx.setOutput(node, 0, rankLayout(outDims), outDims, tensor.Float32)
}

func convertTranspose(ctx *Context, node *protos.NodeProto) {
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)
	perm := onnx.GetIntsAttrOr(node, "perm", nil)
	if perm == nil {
		perm = make([]int, len(xDims))
		for ii := range perm {
			perm[ii] = len(xDims) - 1 - ii
		}
	}
	if len(perm) != len(xDims) {
		throwShape(node, "permutation %v does not match input rank %d", perm, len(xDims))
	}
	if perm[0] != 0 {
		throwUnsupported(node, "transpose moving the batch axis: %v", perm)
	}
	ctx.emit(&keras.Permute{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Dims: perm[1:],
	})
	outDims := permuteDims(xDims, perm)
	ctx.setOutput(node, 0, rankLayout(outDims), outDims, tensor.Float32)
}

// squeezeDims computes the dims after dropping (squeeze) or inserting
// (unsqueeze) size-1 axes.
func squeezeDims(node *protos.NodeProto, inDims, axes []int, squeeze bool) []int {
	if squeeze {
		drop := make(map[int]bool, len(axes))
		if axes == nil {
			for axis, d := range inDims {
				if d == 1 {
					drop[axis] = true
				}
			}
		}
		for _, a := range axes {
			if a < 0 {
				a += len(inDims)
			}
			if a < 0 || a >= len(inDims) {
				throwShape(node, "squeeze axis out of range for rank %d", len(inDims))
			}
			if inDims[a] != 1 && inDims[a] != -1 {
				throwShape(node, "cannot squeeze axis %d of size %d", a, inDims[a])
			}
			drop[a] = true
		}
		out := make([]int, 0, len(inDims))
		for axis, d := range inDims {
			if !drop[axis] {
				out = append(out, d)
			}
		}
		return out
	}

	outRank := len(inDims) + len(axes)
	insert := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += outRank
		}
		if a < 0 || a >= outRank {
			throwShape(node, "unsqueeze axis out of range for rank %d", outRank)
		}
		insert[a] = true
	}
	out := make([]int, 0, outRank)
	next := 0
	for axis := 0; axis < outRank; axis++ {
		if insert[axis] {
			out = append(out, 1)
		} else {
			out = append(out, inDims[next])
			next++
		}
	}
	return out
}

func makeSqueezeLike(squeeze bool) translatorFunc {
	return func(ctx *Context, node *protos.NodeProto) {
		axes := onnx.GetIntsAttrOr(node, "axes", nil)
		if axes == nil && ctx.in(node, 1) != "" {
			axes = ctx.constInts(node, 1)
		}
		xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)
		outDims := squeezeDims(node, xDims, axes, squeeze)
		if len(outDims) == 0 || outDims[0] != xDims[0] {
			throwUnsupported(node, "squeezing the batch axis")
		}
		ctx.emit(&keras.Reshape{
			LayerBase: keras.LayerBase{
				LayerName:     ctx.layerName(node),
				InputTensors:  []string{xName},
				OutputTensors: []string{node.Output[0]},
			},
			TargetShape: outDims[1:],
		})
		ctx.setOutput(node, 0, rankLayout(outDims), outDims, tensor.Float32)
	}
}

func convertConcat(ctx *Context, node *protos.NodeProto) {
	axis := onnx.MustGetIntAttr(node, "axis")

	// When every operand already lives channels-last, concat there and remap
	// the axis; otherwise fall back to the source order.
	want := ChannelsLast
	rank := 0
	for ii := range node.Input {
		info := ctx.value(node, ctx.in(node, ii)).shapeInfo()
		rank = len(info.Dims)
		if ctx.isConst(ctx.in(node, ii)) || info.Layout != ChannelsLast {
			want = ChannelsFirst
		}
	}
	if rank != 4 {
		want = Agnostic
	}
	if axis < 0 {
		axis += rank
	}
	kerasAxis := axis
	if want == ChannelsLast {
		// Position of the source axis after the NCHW -> NHWC move.
		kerasAxis = map[int]int{0: 0, 1: 3, 2: 1, 3: 2}[axis]
	}

	names := make([]string, len(node.Input))
	var outDims []int
	for ii := range node.Input {
		name, dims := ctx.runtimeInput(node, ii, want)
		names[ii] = name
		if outDims == nil {
			outDims = append([]int{}, dims...)
		} else if kerasAxis < len(dims) {
			if dims[kerasAxis] < 0 || outDims[kerasAxis] < 0 {
				outDims[kerasAxis] = -1
			} else {
				outDims[kerasAxis] += dims[kerasAxis]
			}
		}
	}
	if kerasAxis < 0 || kerasAxis >= len(outDims) {
		throwShape(node, "concat axis %d out of range for rank %d", axis, len(outDims))
	}
	ctx.emit(&keras.Concatenate{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  names,
			OutputTensors: []string{node.Output[0]},
		},
		Axis: kerasAxis,
	})
	layout := want
	if want == Agnostic {
		layout = ctx.inputLayout(node, 0)
	}
	ctx.setOutput(node, 0, layout, outDims, tensor.Float32)
}

func convertSlice(ctx *Context, node *protos.NodeProto) {
	inRank := len(ctx.value(node, ctx.in(node, 0)).shapeInfo().Dims)
	starts, ends, steps := ctx.sliceParams(node, inRank)
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)

	outDims := make([]int, inRank)
	for axis := 0; axis < inRank; axis++ {
		dim := xDims[axis]
		if dim < 0 {
			outDims[axis] = -1
			continue
		}
		start := clampSliceIndex(starts[axis], dim)
		end := clampSliceIndex(ends[axis], dim)
		if steps[axis] <= 0 {
			throwUnsupported(node, "non-positive slice step")
		}
		if end < start {
			end = start
		}
		outDims[axis] = (end - start + steps[axis] - 1) / steps[axis]
	}
	ctx.emit(&keras.Slice{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Starts: starts,
		Ends:   ends,
		Steps:  steps,
	})
	ctx.setOutput(node, 0, rankLayout(outDims), outDims, tensor.Float32)
}

func convertSplit(ctx *Context, node *protos.NodeProto) {
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)
	axis := onnx.GetIntAttrOr(node, "axis", 0)
	if axis < 0 {
		axis += len(xDims)
	}
	if axis < 0 || axis >= len(xDims) {
		throwShape(node, "split axis out of range for rank %d", len(xDims))
	}

	sizes := onnx.GetIntsAttrOr(node, "split", nil)
	if sizes == nil && ctx.in(node, 1) != "" {
		sizes = ctx.constInts(node, 1)
	}
	if sizes == nil {
		dim := xDims[axis]
		if dim < 0 || dim%len(node.Output) != 0 {
			throwShape(node, "cannot split axis of size %d into %d equal parts", dim, len(node.Output))
		}
		sizes = make([]int, len(node.Output))
		for ii := range sizes {
			sizes[ii] = dim / len(node.Output)
		}
	}
	if len(sizes) != len(node.Output) {
		throwShape(node, "%d split sizes for %d outputs", len(sizes), len(node.Output))
	}

	ctx.emit(&keras.Split{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: node.Output,
		},
		Axis:       axis,
		SizeSplits: sizes,
	})
	for ii, s := range sizes {
		outDims := append([]int{}, xDims...)
		outDims[axis] = s
		ctx.setOutput(node, ii, rankLayout(outDims), outDims, tensor.Float32)
	}
}

func convertPad(ctx *Context, node *protos.NodeProto) {
	if mode := onnx.GetStringAttrOr(node, "mode", "constant"); mode != "constant" {
		throwUnsupported(node, "pad mode %q", mode)
	}
	pads := onnx.GetIntsAttrOr(node, "pads", nil)
	if pads == nil {
		pads = ctx.constInts(node, 1)
	}
	value := onnx.GetFloatAttrOr(node, "value", 0)
	if len(node.Input) > 2 && ctx.in(node, 2) != "" {
		value = ctx.constScalar(node, 2)
	}
	if len(pads) != 8 {
		throwUnsupported(node, "only rank-4 padding is supported, got %d pad values", len(pads))
	}
	// ONNX order: begins for every axis, then ends. Only spatial padding has
	// a layer equivalent.
	if pads[0] != 0 || pads[1] != 0 || pads[4] != 0 || pads[5] != 0 {
		throwUnsupported(node, "padding batch or channel axes: %v", pads)
	}
	spatial := [2][2]int{{pads[2], pads[6]}, {pads[3], pads[7]}}

	xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
	if len(xDims) != 4 {
		throwShape(node, "pad input must be rank 4, got %v", xDims)
	}
	ctx.emit(&keras.ZeroPadding2D{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Padding: spatial,
		Value:   value,
	})
	outDims := []int{xDims[0], spatialPlus(xDims[1], spatial[0]), spatialPlus(xDims[2], spatial[1]), xDims[3]}
	ctx.setOutput(node, 0, ChannelsLast, outDims, tensor.Float32)
}

// Expand is a broadcast: adding a zero constant of the target shape
// reproduces it with the merge layer's broadcasting.
func convertExpand(ctx *Context, node *protos.NodeProto) {
	// The target shape is expressed in source axis order.
	shape := ctx.constInts(node, 1)
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)
	outDims := broadcastDims(node, xDims, shape)
	size := sizeOf(outDims)
	if size < 0 {
		panic(&DynamicShapeUnsupportedError{NodeName: node.Name, OpType: node.OpType, TensorName: node.Output[0]})
	}
	zeros := tensor.FromFloat32s(make([]float32, size), outDims...)
	l, err := keras.NewBinaryOp(keras.LayerBase{
		LayerName:     ctx.layerName(node),
		InputTensors:  []string{xName},
		OutputTensors: []string{node.Output[0]},
	}, "Add", zeros, false)
	if err != nil {
		throwShape(node, "%v", err)
	}
	ctx.emit(l)
	ctx.setOutput(node, 0, rankLayout(outDims), outDims, tensor.Float32)
}

func convertCast(ctx *Context, node *protos.NodeProto) {
	to, err := tensor.DTypeFromONNX(protos.TensorProto_DataType(onnx.MustGetIntAttr(node, "to")))
	if err != nil {
		throwUnsupported(node, "%v", err)
	}
	xName, xDims, layout := ctx.passthroughInput(node, 0)
	ctx.emit(&keras.Cast{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		To: to,
	})
	ctx.setOutput(node, 0, layout, xDims, to)
}

// Shape reaches the translator only when some dimension is symbolic; the
// materializer folds the static case.
func convertShape(ctx *Context, node *protos.NodeProto) {
	panic(&DynamicShapeUnsupportedError{NodeName: node.Name, OpType: node.OpType, TensorName: ctx.in(node, 0)})
}

// Gather reaches the translator only with runtime data or indices; the
// materializer folds the fully constant case.
func convertGather(ctx *Context, node *protos.NodeProto) {
	offending := ctx.in(node, 0)
	if ctx.isConst(offending) {
		offending = ctx.in(node, 1)
	}
	panic(&DynamicShapeUnsupportedError{NodeName: node.Name, OpType: node.OpType, TensorName: offending})
}
