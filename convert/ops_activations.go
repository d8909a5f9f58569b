package convert

import (
	"math"

	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("Relu", convertRelu)
	registerOp("LeakyRelu", convertLeakyRelu)
	registerOp("PRelu", convertPRelu)
	registerOp("Clip", convertClip)
	registerOp("Softmax", convertSoftmax)
	for op, fn := range map[string]string{
		"Sigmoid": "sigmoid",
		"Tanh":    "tanh",
		"Exp":     "exponential",
		"Sqrt":    "sqrt",
		"Abs":     "abs",
		"Neg":     "neg",
		"Floor":   "floor",
	} {
		registerOp(op, makeActivation(fn))
	}
}

// passthroughInput wires an elementwise op's input in whatever layout it
// already carries.
func (ctx *Context) passthroughInput(node *protos.NodeProto, i int) (string, []int, Layout) {
	layout := ctx.inputLayout(node, i)
	name, dims := ctx.runtimeInput(node, i, layout)
	return name, dims, layout
}

func (ctx *Context) emitElementwise(node *protos.NodeProto, build func(base keras.LayerBase) keras.Layer) {
	xName, xDims, layout := ctx.passthroughInput(node, 0)
	ctx.emit(build(keras.LayerBase{
		LayerName:     ctx.layerName(node),
		InputTensors:  []string{xName},
		OutputTensors: []string{node.Output[0]},
	}))
	ctx.setOutput(node, 0, layout, xDims, tensor.Float32)
}

func convertRelu(ctx *Context, node *protos.NodeProto) {
	ctx.emitElementwise(node, func(base keras.LayerBase) keras.Layer {
		return &keras.ReLU{LayerBase: base}
	})
}

func convertLeakyRelu(ctx *Context, node *protos.NodeProto) {
	alpha := onnx.GetFloatAttrOr(node, "alpha", 0.01)
	ctx.emitElementwise(node, func(base keras.LayerBase) keras.Layer {
		return &keras.LeakyReLU{LayerBase: base, Alpha: alpha}
	})
}

func convertPRelu(ctx *Context, node *protos.NodeProto) {
	slope := ctx.constInput(node, 1)
	xName, xDims, layout := ctx.passthroughInput(node, 0)
	alpha := alignConstant(node, slope, xDims, layout)
	ctx.emit(&keras.PReLU{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Alpha: alpha,
	})
	ctx.setOutput(node, 0, layout, xDims, tensor.Float32)
}

// Clip with a zero lower bound is a (possibly capped) ReLU; other bounds
// have no layer equivalent.
func convertClip(ctx *Context, node *protos.NodeProto) {
	minVal := onnx.GetFloatAttrOr(node, "min", float32(math.Inf(-1)))
	maxVal := onnx.GetFloatAttrOr(node, "max", float32(math.Inf(1)))
	if ctx.in(node, 1) != "" {
		minVal = ctx.constScalar(node, 1)
	}
	if ctx.in(node, 2) != "" {
		maxVal = ctx.constScalar(node, 2)
	}
	if minVal != 0 {
		throwUnsupported(node, "clip with lower bound %g", minVal)
	}
	hasMax := !math.IsInf(float64(maxVal), 1)
	ctx.emitElementwise(node, func(base keras.LayerBase) keras.Layer {
		return &keras.ReLU{LayerBase: base, MaxValue: maxVal, HasMax: hasMax}
	})
}

func (ctx *Context) constScalar(node *protos.NodeProto, i int) float32 {
	t := ctx.constInput(node, i)
	data, err := t.Floats()
	if err != nil || len(data) != 1 {
		throwShape(node, "input #%d must be a scalar", i)
	}
	return data[0]
}

func convertSoftmax(ctx *Context, node *protos.NodeProto) {
	axis := onnx.GetIntAttrOr(node, "axis", -1)
	inRank := len(ctx.value(node, ctx.in(node, 0)).shapeInfo().Dims)
	if axis < 0 {
		axis += inRank
	}

	want := ctx.inputLayout(node, 0)
	kerasAxis := axis
	if inRank == 4 {
		if axis == 1 {
			// Softmax over channels stays channels-last: the axis becomes the
			// last one.
			want, kerasAxis = ChannelsLast, -1
		} else {
			want = ChannelsFirst
		}
	}
	xName, xDims := ctx.runtimeInput(node, 0, want)
	ctx.emit(&keras.Softmax{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Axis: kerasAxis,
	})
	layout := want
	if inRank != 4 {
		layout = ctx.inputLayout(node, 0)
	}
	ctx.setOutput(node, 0, layout, xDims, tensor.Float32)
}

func makeActivation(fn string) translatorFunc {
	return func(ctx *Context, node *protos.NodeProto) {
		ctx.emitElementwise(node, func(base keras.LayerBase) keras.Layer {
			return &keras.Activation{LayerBase: base, Fn: fn}
		})
	}
}
