package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("MaxPool", convertPool)
	registerOp("AveragePool", convertPool)
	registerOp("GlobalAveragePool", convertGlobalAveragePool)
	registerOp("ReduceMean", convertReduce)
	registerOp("ReduceSum", convertReduce)
	registerOp("ReduceMax", convertReduce)
}

func convertPool(ctx *Context, node *protos.NodeProto) {
	kernel := pair2(onnx.MustGetIntsAttr(node, "kernel_shape"))
	strides := pair2(onnx.GetIntsAttrOr(node, "strides", nil))
	if onnx.GetIntAttrOr(node, "ceil_mode", 0) != 0 {
		throwUnsupported(node, "ceil_mode")
	}
	if len(node.Output) > 1 && node.Output[1] != "" {
		throwUnsupported(node, "pooling with an indices output")
	}

	xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
	if len(xDims) != 4 {
		throwShape(node, "pooling input must be rank 4, got %v", xDims)
	}
	padding, zp := translatePadding(node, [2]int{xDims[1], xDims[2]}, kernel, strides, [2]int{1, 1})
	if node.OpType == "AveragePool" {
		includePad := onnx.GetIntAttrOr(node, "count_include_pad", 0) != 0
		if zp != nil && !includePad {
			// Explicitly padded cells would be counted by the layer but must
			// not be: no faithful translation.
			throwUnsupported(node, "asymmetric pads %v with count_include_pad=0", *zp)
		}
		if zp == nil && padding == keras.PaddingSame && includePad {
			// The layer's average divides by the in-bounds window only; pad
			// explicitly so the padded cells are counted.
			pads := readPads(node)
			if pads == ([2][2]int{}) {
				throwUnsupported(node, "auto_pad %q with count_include_pad=1",
					onnx.GetStringAttrOr(node, "auto_pad", "NOTSET"))
			}
			zp, padding = &pads, keras.PaddingValid
		}
	}
	if zp != nil {
		xName, xDims = ctx.zeroPad2d(node, xName, xDims, *zp, 0)
	}

	base := keras.LayerBase{
		LayerName:     ctx.layerName(node),
		InputTensors:  []string{xName},
		OutputTensors: []string{node.Output[0]},
	}
	if node.OpType == "MaxPool" {
		ctx.emit(&keras.MaxPooling2D{LayerBase: base, PoolSize: kernel, Strides: strides, Padding: padding})
	} else {
		ctx.emit(&keras.AveragePooling2D{LayerBase: base, PoolSize: kernel, Strides: strides, Padding: padding})
	}

	outDims := []int{
		xDims[0],
		outSpatialDim(xDims[1], kernel[0], strides[0], 1, padding),
		outSpatialDim(xDims[2], kernel[1], strides[1], 1, padding),
		xDims[3],
	}
	ctx.setOutput(node, 0, ChannelsLast, outDims, tensor.Float32)
}

func convertGlobalAveragePool(ctx *Context, node *protos.NodeProto) {
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
	if len(xDims) != 4 {
		throwShape(node, "global pooling input must be rank 4, got %v", xDims)
	}
	ctx.emit(&keras.GlobalAveragePooling2D{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		KeepDims: true,
	})
	ctx.setOutput(node, 0, ChannelsLast, []int{xDims[0], 1, 1, xDims[3]}, tensor.Float32)
}

func convertReduce(ctx *Context, node *protos.NodeProto) {
	axes := onnx.GetIntsAttrOr(node, "axes", nil)
	if axes == nil && ctx.in(node, 1) != "" {
		axes = ctx.constInts(node, 1)
	}
	keepDims := onnx.GetBoolAttrOr(node, "keepdims", true)

	inLayout := ctx.inputLayout(node, 0)
	inRank := len(ctx.value(node, ctx.in(node, 0)).shapeInfo().Dims)
	if axes == nil {
		axes = make([]int, inRank)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	axes = keras.NormalizeAxes(axes, inRank)

	// The spatial mean over (H, W) of an NCHW tensor is a global average
	// pooling in the target convention.
	if node.OpType == "ReduceMean" && inRank == 4 && len(axes) == 2 && axes[0] == 2 && axes[1] == 3 {
		xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
		ctx.emit(&keras.GlobalAveragePooling2D{
			LayerBase: keras.LayerBase{
				LayerName:     ctx.layerName(node),
				InputTensors:  []string{xName},
				OutputTensors: []string{node.Output[0]},
			},
			KeepDims: keepDims,
		})
		if keepDims {
			ctx.setOutput(node, 0, ChannelsLast, []int{xDims[0], 1, 1, xDims[3]}, tensor.Float32)
		} else {
			ctx.setOutput(node, 0, Agnostic, []int{xDims[0], xDims[3]}, tensor.Float32)
		}
		return
	}

	want := inLayout
	if inRank == 4 {
		want = ChannelsFirst
	}
	xName, xDims := ctx.runtimeInput(node, 0, want)
	var fn string
	switch node.OpType {
	case "ReduceMean":
		fn = "mean"
	case "ReduceSum":
		fn = "sum"
	case "ReduceMax":
		fn = "max"
	}
	ctx.emit(&keras.Reduce{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Fn:       fn,
		Axes:     axes,
		KeepDims: keepDims,
	})

	reduced := make(map[int]bool, len(axes))
	for _, a := range axes {
		reduced[a] = true
	}
	outDims := make([]int, 0, len(xDims))
	for axis, d := range xDims {
		if reduced[axis] {
			if keepDims {
				outDims = append(outDims, 1)
			}
			continue
		}
		outDims = append(outDims, d)
	}
	if len(outDims) == 0 {
		outDims = []int{1}
	}
	layout := Agnostic
	if len(outDims) == 4 && want == ChannelsFirst {
		layout = ChannelsFirst
	}
	ctx.setOutput(node, 0, layout, outDims, tensor.Float32)
}
