package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/tensor"
)

func init() {
	registerOp("Add", makeBinary("Add"))
	registerOp("Sub", makeBinary("Subtract"))
	registerOp("Mul", makeBinary("Multiply"))
	registerOp("Div", makeBinary("Divide"))
	registerOp("Equal", makeBinary("Equal"))
}

// Binary elementwise ops. Two runtime operands are merged in a common
// layout; a constant operand is baked into the layer, its axes aligned to
// the runtime operand's layout. Two constant operands never reach here (the
// materializer folds them).
func makeBinary(class string) translatorFunc {
	return func(ctx *Context, node *protos.NodeProto) {
		aConst := ctx.isConst(ctx.in(node, 0))
		bConst := ctx.isConst(ctx.in(node, 1))

		var l keras.Layer
		var err error
		var outDims []int
		var layout Layout
		switch {
		case !aConst && !bConst:
			layout = mergeLayout(ctx.inputLayout(node, 0), ctx.inputLayout(node, 1))
			aName, aDims := ctx.runtimeInput(node, 0, layout)
			bName, bDims := ctx.runtimeInput(node, 1, layout)
			outDims = broadcastDims(node, aDims, bDims)
			l, err = keras.NewBinaryOp(keras.LayerBase{
				LayerName:     ctx.layerName(node),
				InputTensors:  []string{aName, bName},
				OutputTensors: []string{node.Output[0]},
			}, class, nil, false)
		default:
			runtimeIdx, constIdx := 0, 1
			if aConst {
				runtimeIdx, constIdx = 1, 0
			}
			xName, xDims, xLayout := ctx.passthroughInput(node, runtimeIdx)
			layout = xLayout
			c := alignConstant(node, ctx.constInput(node, constIdx), xDims, xLayout)
			outDims = broadcastDims(node, xDims, c.Dims)
			l, err = keras.NewBinaryOp(keras.LayerBase{
				LayerName:     ctx.layerName(node),
				InputTensors:  []string{xName},
				OutputTensors: []string{node.Output[0]},
			}, class, c, aConst)
		}
		if err != nil {
			throwShape(node, "%v", err)
		}
		ctx.emit(l)
		ctx.setOutput(node, 0, layout, outDims, tensor.Float32)
	}
}

// mergeLayout picks the common layout for two runtime operands: a concrete
// layout wins over agnostic, channels-last wins over channels-first (the
// spatial operand drags the other one along).
func mergeLayout(a, b Layout) Layout {
	if a == ChannelsLast || b == ChannelsLast {
		return ChannelsLast
	}
	if a == ChannelsFirst || b == ChannelsFirst {
		return ChannelsFirst
	}
	return Agnostic
}

// broadcastDims computes the numpy-style broadcast shape, -1 dims staying
// unknown where they matter.
func broadcastDims(node *protos.NodeProto, a, b []int) []int {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for ii := 0; ii < rank; ii++ {
		da, db := 1, 1
		if ii >= rank-len(a) {
			da = a[ii-(rank-len(a))]
		}
		if ii >= rank-len(b) {
			db = b[ii-(rank-len(b))]
		}
		switch {
		case da == db:
			out[ii] = da
		case da == 1:
			out[ii] = db
		case db == 1:
			out[ii] = da
		case da < 0 || db < 0:
			out[ii] = -1
		default:
			throwShape(node, "operand shapes %v and %v do not broadcast", a, b)
		}
	}
	return out
}
