package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("BatchNormalization", convertBatchNorm)
	registerOp("Dropout", convertDropout)
	registerOp("Identity", convertIdentity)
}

func convertBatchNorm(ctx *Context, node *protos.NodeProto) {
	gamma := mustPermuteWeight(ctx.constInput(node, 1), BatchNormParam)
	beta := mustPermuteWeight(ctx.constInput(node, 2), BatchNormParam)
	mean := mustPermuteWeight(ctx.constInput(node, 3), BatchNormParam)
	variance := mustPermuteWeight(ctx.constInput(node, 4), BatchNormParam)

	inRank := len(ctx.value(node, ctx.in(node, 0)).shapeInfo().Dims)
	var want Layout
	switch inRank {
	case 4:
		// The source normalizes axis 1; channels-last moves it to the layer's
		// expected last axis.
		want = ChannelsLast
	case 2:
		want = Agnostic
	default:
		throwUnsupported(node, "normalization over rank-%d input", inRank)
	}
	xName, xDims := ctx.runtimeInput(node, 0, want)

	ctx.emit(&keras.BatchNormalization{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Epsilon:        onnx.GetFloatAttrOr(node, "epsilon", 1e-5),
		Momentum:       onnx.GetFloatAttrOr(node, "momentum", 0.9),
		Gamma:          gamma,
		Beta:           beta,
		MovingMean:     mean,
		MovingVariance: variance,
	})
	layout := Agnostic
	if inRank == 4 {
		layout = ChannelsLast
	}
	ctx.setOutput(node, 0, layout, xDims, tensor.Float32)
}

// Dropout is inference-mode identity; the optional mask output is ignored.
func convertDropout(ctx *Context, node *protos.NodeProto) {
	ctx.alias(node, 0, 0)
}

func convertIdentity(ctx *Context, node *protos.NodeProto) {
	ctx.alias(node, 0, 0)
}
