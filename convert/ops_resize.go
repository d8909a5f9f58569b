package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("Upsample", convertUpsample)
	registerOp("Resize", convertResize)
}

// integerScales validates a 4-value scale vector (batch and channel scales 1,
// whole spatial factors) and returns the spatial factors.
func integerScales(node *protos.NodeProto, scales []float32) [2]int {
	if len(scales) != 4 {
		throwUnsupported(node, "expected 4 scale values, got %v", scales)
	}
	if scales[0] != 1 || scales[1] != 1 {
		throwUnsupported(node, "scaling batch or channel axes: %v", scales)
	}
	out := [2]int{}
	for axis := 0; axis < 2; axis++ {
		s := scales[2+axis]
		if s < 1 || s != float32(int(s)) {
			throwUnsupported(node, "non-integer upsampling factor %g", s)
		}
		out[axis] = int(s)
	}
	return out
}

func upsampleInterpolation(node *protos.NodeProto, mode string) string {
	switch mode {
	case "", "nearest":
		return "nearest"
	case "linear", "bilinear":
		return "bilinear"
	default:
		throwUnsupported(node, "resize mode %q", mode)
		return ""
	}
}

func (ctx *Context) emitUpsampling(node *protos.NodeProto, size [2]int, interpolation string) {
	xName, xDims := ctx.runtimeInput(node, 0, ChannelsLast)
	if len(xDims) != 4 {
		throwShape(node, "upsampling input must be rank 4, got %v", xDims)
	}
	ctx.emit(&keras.UpSampling2D{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.layerName(node),
			InputTensors:  []string{xName},
			OutputTensors: []string{node.Output[0]},
		},
		Size:          size,
		Interpolation: interpolation,
	})
	outDims := []int{xDims[0], -1, -1, xDims[3]}
	for axis := 0; axis < 2; axis++ {
		if xDims[1+axis] >= 0 {
			outDims[1+axis] = xDims[1+axis] * size[axis]
		}
	}
	ctx.setOutput(node, 0, ChannelsLast, outDims, tensor.Float32)
}

func convertUpsample(ctx *Context, node *protos.NodeProto) {
	scales := onnx.GetFloatsAttrOr(node, "scales", nil)
	if scales == nil {
		t := ctx.constInput(node, 1)
		var err error
		scales, err = t.Floats()
		if err != nil {
			throwShape(node, "%v", err)
		}
	}
	mode := upsampleInterpolation(node, onnx.GetStringAttrOr(node, "mode", "nearest"))
	ctx.emitUpsampling(node, integerScales(node, scales), mode)
}

func convertResize(ctx *Context, node *protos.NodeProto) {
	mode := upsampleInterpolation(node, onnx.GetStringAttrOr(node, "mode", "nearest"))
	coord := onnx.GetStringAttrOr(node, "coordinate_transformation_mode", "half_pixel")
	switch {
	case mode == "nearest" && coord == "asymmetric":
		if nm := onnx.GetStringAttrOr(node, "nearest_mode", "round_prefer_floor"); nm != "floor" {
			throwUnsupported(node, "nearest_mode %q", nm)
		}
	case mode == "bilinear" && coord == "align_corners":
	default:
		throwUnsupported(node, "coordinate_transformation_mode %q with mode %q", coord, mode)
	}

	var scales []float32
	if name := ctx.in(node, 2); name != "" {
		t := ctx.constInput(node, 2)
		if t.Size() > 0 {
			var err error
			scales, err = t.Floats()
			if err != nil {
				throwShape(node, "%v", err)
			}
		}
	}
	if scales == nil {
		// Derive factors from explicit output sizes.
		sizes := ctx.constInts(node, 3)
		info := ctx.value(node, ctx.in(node, 0)).shapeInfo()
		inDims := info.Dims
		if info.Layout == ChannelsLast && len(inDims) == 4 {
			// Sizes are in source axis order.
			inDims = permuteDims(inDims, permToChannelsFirst)
		}
		if len(sizes) != 4 || len(inDims) != 4 {
			throwUnsupported(node, "expected 4 output sizes, got %v", sizes)
		}
		scales = make([]float32, 4)
		for axis := 0; axis < 4; axis++ {
			if inDims[axis] < 0 || sizes[axis]%inDims[axis] != 0 {
				throwUnsupported(node, "output size %d is not a whole multiple of input %d", sizes[axis], inDims[axis])
			}
			scales[axis] = float32(sizes[axis] / inDims[axis])
		}
	}
	ctx.emitUpsampling(node, integerScales(node, scales), mode)
}
