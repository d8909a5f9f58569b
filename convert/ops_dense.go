package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("Gemm", convertGemm)
	registerOp("MatMul", convertMatMul)
	registerOp("Flatten", convertFlatten)
}

// Gemm in the fully-connected form: alpha=beta=1, no transposed input, a
// constant weight matrix. Anything else has no dense-layer equivalent.
func convertGemm(ctx *Context, node *protos.NodeProto) {
	if alpha := onnx.GetFloatAttrOr(node, "alpha", 1); alpha != 1 {
		throwUnsupported(node, "alpha=%g", alpha)
	}
	if beta := onnx.GetFloatAttrOr(node, "beta", 1); beta != 1 {
		throwUnsupported(node, "beta=%g", beta)
	}
	if onnx.GetIntAttrOr(node, "transA", 0) != 0 {
		throwUnsupported(node, "transposed left operand")
	}

	w := ctx.constInput(node, 1)
	if w.Rank() != 2 {
		throwShape(node, "weight matrix must be rank 2, got %s", w)
	}
	var kernel *tensor.Tensor
	if onnx.GetIntAttrOr(node, "transB", 0) != 0 {
		kernel = mustPermuteWeight(w, DenseMatrix)
	} else {
		kernel = w
	}
	units := kernel.Dims[1]

	var bias *tensor.Tensor
	useBias := ctx.in(node, 2) != ""
	if useBias {
		bias = mustPermuteWeight(ctx.constInput(node, 2), Bias)
	}

	xName, xDims := ctx.runtimeInput(node, 0, Agnostic)
	if len(xDims) != 2 {
		throwShape(node, "input must be rank 2, got %v", xDims)
	}
	ctx.emit(&keras.Dense{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Units:   units,
		UseBias: useBias,
		Kernel:  kernel,
		Bias:    bias,
	})
	ctx.setOutput(node, 0, Agnostic, []int{xDims[0], units}, tensor.Float32)
}

// MatMul against a constant rank-2 right operand is a bias-free dense layer
// over the last axis.
func convertMatMul(ctx *Context, node *protos.NodeProto) {
	if ctx.isConst(ctx.in(node, 0)) {
		throwUnsupported(node, "constant left operand")
	}
	w := ctx.constInput(node, 1)
	if w.Rank() != 2 {
		throwUnsupported(node, "right operand must be a rank-2 constant, got %s", w)
	}
	units := w.Dims[1]

	want := ctx.inputLayout(node, 0)
	if want == ChannelsLast {
		want = ChannelsFirst
	}
	xName, xDims := ctx.runtimeInput(node, 0, want)
	if len(xDims) < 1 {
		throwShape(node, "input must have at least rank 1")
	}
	ctx.emit(&keras.Dense{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Units:   units,
		UseBias: false,
		Kernel:  w,
	})
	outDims := append(append([]int{}, xDims[:len(xDims)-1]...), units)
	layout := Agnostic
	if len(outDims) == 4 {
		layout = ChannelsFirst
	}
	ctx.setOutput(node, 0, layout, outDims, tensor.Float32)
}

// Flatten collapses everything after the batch axis. The input is brought
// back to the source axis order first so the flattened feature order matches
// the original graph.
func convertFlatten(ctx *Context, node *protos.NodeProto) {
	if axis := onnx.GetIntAttrOr(node, "axis", 1); axis != 1 {
		throwUnsupported(node, "flatten at axis %d", axis)
	}
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsFirst)
	features := 1
	for _, d := range xDims[1:] {
		if d < 0 {
			features = -1
			break
		}
		features *= d
	}
	ctx.emit(&keras.Flatten{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
	})
	ctx.setOutput(node, 0, Agnostic, []int{xDims[0], features}, tensor.Float32)
}
