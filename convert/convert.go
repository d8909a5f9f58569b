// Package convert implements the operator-to-layer translation engine: it
// walks a parsed ONNX graph in dependency order, tracks shape and layout
// (channels-first vs channels-last) per tensor, permutes weight tensors into
// the target convention, dispatches each operator to a registered
// translation routine and assembles the resulting layers into a connected
// keras.Model.
//
// All failures are fatal and typed (see errors.go); no partial model is ever
// returned.
package convert

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/keras"
	"github.com/ray0809/onnx-to-keras/onnx"
	"github.com/ray0809/onnx-to-keras/tensor"
	"k8s.io/klog/v2"
)

// Context is the per-run conversion state: the tracked value per ONNX tensor
// name, the layers built so far and the counters generating unique names.
// It lives for one Convert call and is discarded afterwards; there is no
// global mutable state.
type Context struct {
	model  *onnx.Model
	layers []keras.Layer

	values      map[string]*valueState
	layerNames  map[string]int
	tensorNames map[string]int
}

// rep is one materialized representation of a value: the target-side tensor
// name carrying it in a given layout, with its physical dims.
type rep struct {
	tensorName string
	dims       []int
}

// valueState tracks one ONNX tensor through the conversion. Constants
// (initializers and folded subexpressions) carry their data; runtime values
// carry one representation per layout they have been requested in.
type valueState struct {
	onnxName string
	dtype    tensor.DType
	constant *tensor.Tensor

	produced Layout
	reps     map[Layout]rep
}

func newContext(model *onnx.Model) *Context {
	return &Context{
		model:       model,
		values:      make(map[string]*valueState),
		layerNames:  make(map[string]int),
		tensorNames: make(map[string]int),
	}
}

// Convert translates a parsed ONNX model into a keras.Model. Translators
// panic with the typed conversion errors; this boundary recovers them into
// the error return.
func Convert(model *onnx.Model) (m *keras.Model, err error) {
	err = exceptions.TryCatch[error](func() {
		ctx := newContext(model)
		m = ctx.run()
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// InferShapes runs the translation pipeline and returns the inferred shape,
// dtype and layout per ONNX tensor name, as produced by each tensor's
// defining operator.
func InferShapes(model *onnx.Model) (shapes map[string]ShapeInfo, err error) {
	err = exceptions.TryCatch[error](func() {
		ctx := newContext(model)
		ctx.run()
		shapes = make(map[string]ShapeInfo, len(ctx.values))
		for name, v := range ctx.values {
			shapes[name] = v.shapeInfo()
		}
	})
	if err != nil {
		return nil, err
	}
	return shapes, nil
}

func (v *valueState) shapeInfo() ShapeInfo {
	if v.constant != nil {
		return ShapeInfo{Dims: v.constant.Dims, DType: v.dtype, Layout: Agnostic}
	}
	r := v.reps[v.produced]
	return ShapeInfo{Dims: r.dims, DType: v.dtype, Layout: v.produced}
}

func (ctx *Context) run() *keras.Model {
	order, err := Order(ctx.model)
	if err != nil {
		panic(err)
	}

	for name, t := range allInitializers(ctx.model) {
		ctx.values[name] = &valueState{
			onnxName: name,
			dtype:    t.DType,
			constant: t,
			produced: Agnostic,
			reps:     make(map[Layout]rep),
		}
	}
	for _, name := range ctx.model.InputNames {
		ctx.addInput(name)
	}

	for _, node := range order {
		if ctx.materialize(node) {
			klog.V(1).Infof("folded %s node %q into a constant", node.OpType, node.Name)
			continue
		}
		fn, found := opRegistry[node.OpType]
		if !found {
			panic(&UnsupportedOperatorError{NodeName: node.Name, OpType: node.OpType})
		}
		fn(ctx, node)
		klog.V(1).Infof("converted %s node %q", node.OpType, node.Name)
	}

	outputs := make([]string, 0, len(ctx.model.OutputNames))
	for _, name := range ctx.model.OutputNames {
		outputs = append(outputs, ctx.finalizeOutput(name))
	}
	return &keras.Model{
		Name:    ctx.model.Proto.Graph.Name,
		Inputs:  ctx.model.InputNames,
		Outputs: outputs,
		Layers:  ctx.layers,
	}
}

func allInitializers(model *onnx.Model) map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	for _, tp := range model.Proto.Graph.Initializer {
		if t, found := model.Initializer(tp.Name); found {
			out[tp.Name] = t
		}
	}
	return out
}

// addInput declares one graph input as an InputLayer. Rank-4 inputs follow
// the source convention and are tagged channels-first.
func (ctx *Context) addInput(name string) {
	dims, dtype, err := ctx.model.InputShape(name)
	if err != nil {
		panic(&ShapeInferenceError{NodeName: name, OpType: "graph input", Reason: err.Error()})
	}
	layout := Agnostic
	if len(dims) == 4 {
		layout = ChannelsFirst
	}
	ctx.claimTensorName(name)
	ctx.emit(&keras.InputLayer{
		LayerBase:  keras.LayerBase{LayerName: ctx.uniqueLayerName(name), OutputTensors: []string{name}},
		BatchShape: dims,
		DType:      dtype,
	})
	ctx.values[name] = &valueState{
		onnxName: name,
		dtype:    dtype,
		produced: layout,
		reps:     map[Layout]rep{layout: {tensorName: name, dims: dims}},
	}
}

func (ctx *Context) emit(l keras.Layer) {
	ctx.layers = append(ctx.layers, l)
}

func (ctx *Context) uniqueLayerName(base string) string {
	if base == "" {
		base = "layer"
	}
	n := ctx.layerNames[base]
	ctx.layerNames[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

func (ctx *Context) uniqueTensorName(base string) string {
	n := ctx.tensorNames[base]
	ctx.tensorNames[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, n)
}

func (ctx *Context) claimTensorName(name string) {
	ctx.tensorNames[name]++
}

// layerName derives the layer name for a node: its declared name when
// present, its operator type otherwise, uniquified.
func (ctx *Context) layerName(node *protos.NodeProto) string {
	base := node.Name
	if base == "" {
		base = strings.ToLower(node.OpType)
	}
	return ctx.uniqueLayerName(base)
}

// in returns the i-th input tensor name of the node ("" for an omitted
// optional input).
func (ctx *Context) in(node *protos.NodeProto, i int) string {
	if i >= len(node.Input) {
		return ""
	}
	return node.Input[i]
}

func (ctx *Context) value(node *protos.NodeProto, name string) *valueState {
	v, found := ctx.values[name]
	if !found {
		panic(&ShapeInferenceError{NodeName: node.Name, OpType: node.OpType,
			Reason: fmt.Sprintf("input tensor %q has not been produced yet", name)})
	}
	return v
}

// isConst reports whether the named value is statically known.
func (ctx *Context) isConst(name string) bool {
	v, found := ctx.values[name]
	return found && v.constant != nil
}

// constInput returns the statically known value of the i-th input, panicking
// with DynamicShapeUnsupportedError when it is runtime-only.
func (ctx *Context) constInput(node *protos.NodeProto, i int) *tensor.Tensor {
	name := ctx.in(node, i)
	if name == "" {
		panic(&ShapeInferenceError{NodeName: node.Name, OpType: node.OpType,
			Reason: fmt.Sprintf("missing required input #%d", i)})
	}
	v := ctx.value(node, name)
	if v.constant == nil {
		panic(&DynamicShapeUnsupportedError{NodeName: node.Name, OpType: node.OpType, TensorName: name})
	}
	return v.constant
}

// runtimeInput wires the i-th input as a target-side tensor in the wanted
// layout, inserting a layout-conversion Permute (or materializing a Constant
// layer) when needed. It returns the tensor name and its physical dims.
func (ctx *Context) runtimeInput(node *protos.NodeProto, i int, want Layout) (string, []int) {
	name := ctx.in(node, i)
	if name == "" {
		panic(&ShapeInferenceError{NodeName: node.Name, OpType: node.OpType,
			Reason: fmt.Sprintf("missing required input #%d", i)})
	}
	v := ctx.value(node, name)
	if v.constant != nil {
		return ctx.wireConstant(v, want)
	}
	r := ctx.forceLayout(v, want)
	return r.tensorName, r.dims
}

// inputLayout returns the layout the i-th input currently carries, with
// constants reported as Agnostic.
func (ctx *Context) inputLayout(node *protos.NodeProto, i int) Layout {
	v := ctx.value(node, ctx.in(node, i))
	if v.constant != nil {
		return Agnostic
	}
	return v.produced
}

// wireConstant emits a Constant layer for a statically known value consumed
// by a runtime layer. Rank-4 constants requested channels-last get their
// data transposed, no conversion layer needed.
func (ctx *Context) wireConstant(v *valueState, want Layout) (string, []int) {
	key := want
	if v.constant.Rank() != 4 {
		key = Agnostic
	}
	if r, found := v.reps[key]; found {
		return r.tensorName, r.dims
	}
	value := v.constant
	if key == ChannelsLast {
		var err error
		value, err = value.Transpose(permToChannelsLast...)
		if err != nil {
			panic(&ShapeInferenceError{NodeName: v.onnxName, OpType: "Constant", Reason: err.Error()})
		}
	}
	tensorName := ctx.uniqueTensorName(v.onnxName)
	ctx.emit(&keras.Constant{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.uniqueLayerName(v.onnxName),
			OutputTensors: []string{tensorName},
		},
		Value: value,
	})
	r := rep{tensorName: tensorName, dims: value.Dims}
	v.reps[key] = r
	return r.tensorName, r.dims
}

// forceLayout returns a representation of the value in the wanted layout,
// inserting a single Permute layer per layout the first time it is needed.
// Permutation is the only layout recovery mechanism; a mismatch is never
// silently ignored.
func (ctx *Context) forceLayout(v *valueState, want Layout) rep {
	cur := v.produced
	r := v.reps[cur]
	if want == Agnostic || want == cur || len(r.dims) != 4 {
		return r
	}
	if cached, found := v.reps[want]; found {
		return cached
	}
	// Rank-4 agnostic values carry the raw source order, i.e. channels-first.
	effective := cur
	if effective == Agnostic {
		effective = ChannelsFirst
	}
	if effective == want {
		v.reps[want] = r
		return r
	}

	var perm []int
	var suffix string
	if want == ChannelsLast {
		perm, suffix = permToChannelsLast, "nhwc"
	} else {
		perm, suffix = permToChannelsFirst, "nchw"
	}
	out := rep{
		tensorName: ctx.uniqueTensorName(r.tensorName + "_" + suffix),
		dims:       permuteDims(r.dims, perm),
	}
	ctx.emit(&keras.Permute{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.uniqueLayerName("permute"),
			InputTensors:  []string{r.tensorName},
			OutputTensors: []string{out.tensorName},
		},
		Dims: perm[1:],
	})
	v.reps[want] = out
	return out
}

// setOutput records the node's i-th output as a runtime value produced by a
// layer whose outbound tensor carries the ONNX name.
func (ctx *Context) setOutput(node *protos.NodeProto, i int, layout Layout, dims []int, dtype tensor.DType) string {
	name := node.Output[i]
	ctx.claimTensorName(name)
	ctx.values[name] = &valueState{
		onnxName: name,
		dtype:    dtype,
		produced: layout,
		reps:     map[Layout]rep{layout: {tensorName: name, dims: dims}},
	}
	return name
}

// setConst records the node's i-th output as a statically known value.
func (ctx *Context) setConst(node *protos.NodeProto, i int, t *tensor.Tensor) {
	name := node.Output[i]
	if t.Name == "" {
		named := *t
		named.Name = name
		t = &named
	}
	ctx.values[name] = &valueState{
		onnxName: name,
		dtype:    t.DType,
		constant: t,
		produced: Agnostic,
		reps:     make(map[Layout]rep),
	}
}

// alias makes an output share its input's value (Identity, Dropout).
func (ctx *Context) alias(node *protos.NodeProto, outIdx, inIdx int) {
	ctx.values[node.Output[outIdx]] = ctx.value(node, ctx.in(node, inIdx))
}

// finalizeOutput makes the declared graph output available under its ONNX
// name in the source (channels-first) convention, inserting a final layout
// conversion when the producing layer emitted channels-last and a renaming
// identity when the tensor was produced under another name (an aliased or
// folded output).
func (ctx *Context) finalizeOutput(name string) string {
	v, found := ctx.values[name]
	if !found {
		panic(&ShapeInferenceError{NodeName: name, OpType: "graph output",
			Reason: "output tensor was never produced"})
	}
	var produced string
	switch {
	case v.constant != nil:
		produced, _ = ctx.wireConstant(v, Agnostic)
	case v.produced == ChannelsLast && len(v.reps[v.produced].dims) == 4:
		r := v.reps[ChannelsLast]
		// The produced channels-last tensor may hold the declared name; move
		// it aside so the converted tensor can take it over.
		if r.tensorName == name {
			internal := ctx.uniqueTensorName(name + "_nhwc")
			ctx.renameTensor(name, internal)
			r.tensorName = internal
			v.reps[ChannelsLast] = r
		}
		cf := ctx.forceLayout(v, ChannelsFirst)
		if cf.tensorName != name {
			ctx.renameTensor(cf.tensorName, name)
			cf.tensorName = name
			v.reps[ChannelsFirst] = cf
		}
		return name
	default:
		produced = v.reps[v.produced].tensorName
	}
	if produced == name {
		return name
	}
	ctx.claimTensorName(name)
	ctx.emit(&keras.Identity{
		LayerBase: keras.LayerBase{
			LayerName:     ctx.uniqueLayerName(name),
			InputTensors:  []string{produced},
			OutputTensors: []string{name},
		},
	})
	return name
}

// renameTensor rewrites a tensor name across all wired layers.
func (ctx *Context) renameTensor(from, to string) {
	for _, l := range ctx.layers {
		replace(l.Inbound(), from, to)
		replace(l.Outbound(), from, to)
	}
}

func replace(names []string, from, to string) {
	for ii, n := range names {
		if n == from {
			names[ii] = to
		}
	}
}

// alignConstant reorders a constant operand of a binary op so that its
// broadcast axes line up with a channels-last runtime operand. The source
// broadcast was right-aligned against NCHW; the constant is padded to rank 4
// and its channel axis moved last.
func alignConstant(node *protos.NodeProto, c *tensor.Tensor, runtimeDims []int, layout Layout) *tensor.Tensor {
	if layout != ChannelsLast || len(runtimeDims) != 4 || c.Rank() <= 0 || c.Size() == 1 {
		return c
	}
	padded := c
	if padded.Rank() < 4 {
		dims := make([]int, 4)
		for ii := 0; ii < 4-c.Rank(); ii++ {
			dims[ii] = 1
		}
		copy(dims[4-c.Rank():], c.Dims)
		var err error
		padded, err = c.Reshape(dims...)
		if err != nil {
			panic(&ShapeInferenceError{NodeName: node.Name, OpType: node.OpType, Reason: err.Error()})
		}
	}
	out, err := padded.Transpose(permToChannelsLast...)
	if err != nil {
		panic(&ShapeInferenceError{NodeName: node.Name, OpType: node.OpType, Reason: err.Error()})
	}
	return out
}

func throwShape(node *protos.NodeProto, format string, args ...any) {
	panic(&ShapeInferenceError{NodeName: node.Name, OpType: node.OpType,
		Reason: fmt.Sprintf(format, args...)})
}

func throwUnsupported(node *protos.NodeProto, format string, args ...any) {
	panic(&UnsupportedOperatorError{NodeName: node.Name, OpType: node.OpType,
		Reason: fmt.Sprintf(format, args...)})
}
