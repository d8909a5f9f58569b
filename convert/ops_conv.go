package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("Conv", convertConv)
	registerOp("ConvTranspose", convertConvTranspose)
}

// pair2 widens a scalar or single-element attribute list to an (h, w) pair.
func pair2(v []int) [2]int {
	switch len(v) {
	case 0:
		return [2]int{1, 1}
	case 1:
		return [2]int{v[0], v[0]}
	default:
		return [2]int{v[0], v[1]}
	}
}

// readPads returns the ONNX spatial pads as ((top, bottom), (left, right)).
func readPads(node *protos.NodeProto) [2][2]int {
	pads := onnx.GetIntsAttrOr(node, "pads", nil)
	if pads == nil {
		return [2][2]int{}
	}
	if len(pads) != 4 {
		throwUnsupported(node, "expected 4 spatial pad values, got %v", pads)
	}
	// ONNX order is (top, left, bottom, right).
	return [2][2]int{{pads[0], pads[2]}, {pads[1], pads[3]}}
}

// translatePadding maps the ONNX pads/auto_pad attributes onto the target
// padding modes. Pads that reproduce the target's "same" arithmetic become
// Padding "same"; everything else becomes an explicit ZeroPadding2D followed
// by "valid".
func translatePadding(node *protos.NodeProto, inSpatial, kernel, strides, dilations [2]int) (keras.Padding, *[2][2]int) {
	switch autoPad := onnx.GetStringAttrOr(node, "auto_pad", "NOTSET"); autoPad {
	case "NOTSET", "":
	case "SAME_UPPER":
		return keras.PaddingSame, nil
	case "VALID":
		return keras.PaddingValid, nil
	default:
		throwUnsupported(node, "auto_pad mode %q", autoPad)
	}

	pads := readPads(node)
	if pads == [2][2]int{} {
		return keras.PaddingValid, nil
	}
	for axis := 0; axis < 2; axis++ {
		if !sameEquivalent(inSpatial[axis], kernel[axis], strides[axis], dilations[axis], pads[axis]) {
			zp := pads
			return keras.PaddingValid, &zp
		}
	}
	return keras.PaddingSame, nil
}

// sameEquivalent reports whether explicit pads reproduce the target's "same"
// padding on one axis: total padding (out-1)*stride+kernel-in, the extra
// cell on the trailing side.
func sameEquivalent(in, kernel, stride, dilation int, pad [2]int) bool {
	effective := (kernel-1)*dilation + 1
	if in < 0 {
		// Unknown extent: only the stride-1 symmetric case is size-independent.
		return stride == 1 && effective%2 == 1 && pad[0] == pad[1] && pad[0] == (effective-1)/2
	}
	out := (in + stride - 1) / stride
	padTotal := (out-1)*stride + effective - in
	if padTotal < 0 {
		padTotal = 0
	}
	return pad[0] == padTotal/2 && pad[1] == padTotal-padTotal/2
}

// zeroPad2d inserts an explicit spatial padding layer in front of a
// channels-last tensor and returns the padded tensor name and dims.
func (ctx *Context) zeroPad2d(node *protos.NodeProto, xName string, xDims []int, pad [2][2]int, value float32) (string, []int) {
	outDims := []int{xDims[0], spatialPlus(xDims[1], pad[0]), spatialPlus(xDims[2], pad[1]), xDims[3]}
	outName := ctx.uniqueTensorName(xName + "_pad")
	ctx.emit(&keras.ZeroPadding2D{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.uniqueLayerName("pad"),
			InputTensors:  []string{xName},
			OutputTensors: []string{outName},
		},
		Padding: pad,
		Value:   value,
	})
	return outName, outDims
}

func spatialPlus(in int, pad [2]int) int {
	if in < 0 {
		return -1
	}
	return in + pad[0] + pad[1]
}

// outSpatialDim computes one output spatial extent, -1 staying -1.
func outSpatialDim(in, kernel, stride, dilation int, padding keras.Padding) int {
	if in < 0 {
		return -1
	}
	if padding == keras.PaddingSame {
		return (in + stride - 1) / stride
	}
	effective := (kernel-1)*dilation + 1
	return (in-effective)/stride + 1
}

func convertConv(ctx *Context, node *protos.NodeProto) {
	w := ctx.constInput(node, 1)
	if w.Rank() != 4 {
		throwUnsupported(node, "only 2D convolution is supported, weight is %s", w)
	}
	group := onnx.GetIntAttrOr(node, "group", 1)
	strides := pair2(onnx.GetIntsAttrOr(node, "strides", nil))
	dilations := pair2(onnx.GetIntsAttrOr(node, "dilations", nil))
	kernel := [2]int{w.Dims[2], w.Dims[3]}

	xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
	if len(xDims) != 4 {
		throwShape(node, "convolution input must be rank 4, got %v", xDims)
	}
	cin := xDims[3]
	if cin < 0 {
		cin = w.Dims[1] * group
	}

	var bias *tensor.Tensor
	useBias := ctx.in(node, 2) != ""
	if useBias {
		bias = mustPermuteWeight(ctx.constInput(node, 2), Bias)
	}

	padding, zp := translatePadding(node, [2]int{xDims[1], xDims[2]}, kernel, strides, dilations)
	if zp != nil {
		xName, xDims = ctx.zeroPad2d(node, xName, xDims, *zp, 0)
	}

	layerName := ctx.layerName(node)
	base := keras.LayerBase{
		LayerName:     layerName,
		InputTensors:  []string{xName},
		OutputTensors: []string{node.Output[0]},
	}
	cout := w.Dims[0]
	switch {
	case group == 1:
		ctx.emit(&keras.Conv2D{
			LayerBase:    base,
			Filters:      cout,
			KernelSize:   kernel,
			Strides:      strides,
			DilationRate: dilations,
			Padding:      padding,
			Groups:       1,
			UseBias:      useBias,
			Kernel:       mustPermuteWeight(w, KernelConv),
			Bias:         bias,
		})
	case group == cin && w.Dims[1] == 1:
		// Depthwise: one group per input channel, optional multiplier.
		mult := cout / cin
		kt := mustPermuteWeight(w, KernelDepthwise)
		kt, err := kt.Reshape(kernel[0], kernel[1], cin, mult)
		if err != nil {
			throwShape(node, "depthwise kernel: %v", err)
		}
		ctx.emit(&keras.DepthwiseConv2D{
			LayerBase:    base,
			KernelSize:   kernel,
			Strides:      strides,
			DilationRate: dilations,
			Padding:      padding,
			UseBias:      useBias,
			Kernel:       kt,
			Bias:         bias,
		})
	default:
		if cin%group != 0 || cout%group != 0 {
			throwShape(node, "group %d does not divide channels %d/%d", group, cin, cout)
		}
		ctx.emit(&keras.Conv2D{
			LayerBase:    base,
			Filters:      cout,
			KernelSize:   kernel,
			Strides:      strides,
			DilationRate: dilations,
			Padding:      padding,
			Groups:       group,
			UseBias:      useBias,
			Kernel:       mustPermuteWeight(w, KernelConv),
			Bias:         bias,
		})
	}

	outDims := []int{
		xDims[0],
		outSpatialDim(xDims[1], kernel[0], strides[0], dilations[0], padding),
		outSpatialDim(xDims[2], kernel[1], strides[1], dilations[1], padding),
		cout,
	}
	ctx.setOutput(node, 0, ChannelsLast, outDims, tensor.Float32)
}

func convertConvTranspose(ctx *Context, node *protos.NodeProto) {
	w := ctx.constInput(node, 1)
	if w.Rank() != 4 {
		throwUnsupported(node, "only 2D transposed convolution is supported, weight is %s", w)
	}
	if group := onnx.GetIntAttrOr(node, "group", 1); group != 1 {
		throwUnsupported(node, "grouped transposed convolution (group=%d)", group)
	}
	if onnx.GetNodeAttr(node, "output_shape", false) != nil {
		throwUnsupported(node, "explicit output_shape")
	}
	strides := pair2(onnx.GetIntsAttrOr(node, "strides", nil))
	if dilations := pair2(onnx.GetIntsAttrOr(node, "dilations", nil)); dilations != [2]int{1, 1} {
		throwUnsupported(node, "dilated transposed convolution")
	}
	kernel := [2]int{w.Dims[2], w.Dims[3]}
	outputPadding := [2]int{0, 0}
	if op := onnx.GetIntsAttrOr(node, "output_padding", nil); op != nil {
		outputPadding = pair2(op)
	}

	// Pad translation: total pad kernel-stride reproduces "same" (output
	// in*stride); zero pads with no output_padding reproduce "valid".
	pads := readPads(node)
	var padding keras.Padding
	switch {
	case pads == [2][2]int{} && onnx.GetStringAttrOr(node, "auto_pad", "NOTSET") == "SAME_UPPER":
		padding = keras.PaddingSame
	case pads == [2][2]int{}:
		padding = keras.PaddingValid
	case pads[0][0]+pads[0][1] == kernel[0]-strides[0] && pads[1][0]+pads[1][1] == kernel[1]-strides[1]:
		padding = keras.PaddingSame
	default:
		throwUnsupported(node, "pads %v do not map onto a supported padding mode", pads)
	}
	if padding == keras.PaddingSame && outputPadding != [2]int{0, 0} {
		// "same" pins the output to in*stride; extra output rows/columns have
		// no layer equivalent there.
		throwUnsupported(node, "output_padding %v with same-equivalent pads", outputPadding)
	}

	xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
	if len(xDims) != 4 {
		throwShape(node, "transposed convolution input must be rank 4, got %v", xDims)
	}
	var bias *tensor.Tensor
	useBias := ctx.in(node, 2) != ""
	if useBias {
		bias = mustPermuteWeight(ctx.constInput(node, 2), Bias)
	}

	cout := w.Dims[1]
	ctx.emit(&keras.Conv2DTranspose{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Filters:       cout,
		KernelSize:    kernel,
		Strides:       strides,
		DilationRate:  [2]int{1, 1},
		Padding:       padding,
		OutputPadding: outputPadding,
		UseBias:       useBias,
		Kernel:        mustPermuteWeight(w, KernelConvTranspose),
		Bias:          bias,
	})

	outDims := []int{xDims[0], -1, -1, cout}
	for axis := 0; axis < 2; axis++ {
		in := xDims[1+axis]
		if in < 0 {
			continue
		}
		if padding == keras.PaddingSame {
			outDims[1+axis] = in * strides[axis]
		} else {
			outDims[1+axis] = (in-1)*strides[axis] + kernel[axis] + outputPadding[axis]
		}
	}
	ctx.setOutput(node, 0, ChannelsLast, outDims, tensor.Float32)
}
