package protos

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// The test builds the wire bytes by hand with protowire, so the decoder is
// checked against the real encoding rather than its own inverse.

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed32Field(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func packedVarints(values ...uint64) []byte {
	var b []byte
	for _, v := range values {
		b = protowire.AppendVarint(b, v)
	}
	return b
}

func buildTestModel() []byte {
	// Attribute "strides" = ints [2, 2] (packed).
	var strides []byte
	strides = appendStringField(strides, 1, "strides")
	strides = appendBytesField(strides, 8, packedVarints(2, 2))
	strides = appendVarintField(strides, 20, uint64(AttributeProto_INTS))

	// Attribute "alpha" = float 0.5.
	var alpha []byte
	alpha = appendStringField(alpha, 1, "alpha")
	alpha = appendFixed32Field(alpha, 2, math.Float32bits(0.5))
	alpha = appendVarintField(alpha, 20, uint64(AttributeProto_FLOAT))

	var node []byte
	node = appendStringField(node, 1, "x")
	node = appendStringField(node, 1, "w")
	node = appendStringField(node, 2, "y")
	node = appendStringField(node, 3, "conv0")
	node = appendStringField(node, 4, "Conv")
	node = appendBytesField(node, 5, strides)
	node = appendBytesField(node, 5, alpha)
	// An unknown field number must be skipped, not rejected.
	node = appendVarintField(node, 99, 7)

	// Initializer "w": float32 (1, 2), raw data.
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-2))
	var init []byte
	init = appendVarintField(init, 1, 1) // dims, unpacked
	init = appendVarintField(init, 1, 2)
	init = appendVarintField(init, 2, uint64(TensorProto_FLOAT))
	init = appendStringField(init, 8, "w")
	init = appendBytesField(init, 9, raw)

	// Input "x": float32 tensor ("batch", 3).
	var dimParam []byte
	dimParam = appendStringField(dimParam, 2, "batch")
	var dimValue []byte
	dimValue = appendVarintField(dimValue, 1, 3)
	var shape []byte
	shape = appendBytesField(shape, 1, dimParam)
	shape = appendBytesField(shape, 1, dimValue)
	var tensorType []byte
	tensorType = appendVarintField(tensorType, 1, uint64(TensorProto_FLOAT))
	tensorType = appendBytesField(tensorType, 2, shape)
	var typeProto []byte
	typeProto = appendBytesField(typeProto, 1, tensorType)
	var input []byte
	input = appendStringField(input, 1, "x")
	input = appendBytesField(input, 2, typeProto)

	var output []byte
	output = appendStringField(output, 1, "y")

	var graph []byte
	graph = appendBytesField(graph, 1, node)
	graph = appendStringField(graph, 2, "test-graph")
	graph = appendBytesField(graph, 5, init)
	graph = appendBytesField(graph, 11, input)
	graph = appendBytesField(graph, 12, output)

	var opset []byte
	opset = appendVarintField(opset, 2, 13)

	var meta []byte
	meta = appendStringField(meta, 1, "source")
	meta = appendStringField(meta, 2, "unit-test")

	var model []byte
	model = appendVarintField(model, 1, 8)
	model = appendStringField(model, 2, "pytorch")
	model = appendBytesField(model, 7, graph)
	model = appendBytesField(model, 8, opset)
	model = appendBytesField(model, 14, meta)
	return model
}

func TestUnmarshalModel(t *testing.T) {
	m, err := UnmarshalModel(buildTestModel())
	require.NoError(t, err)

	assert.EqualValues(t, 8, m.IrVersion)
	assert.Equal(t, "pytorch", m.ProducerName)
	require.Len(t, m.OpsetImport, 1)
	assert.EqualValues(t, 13, m.OpsetImport[0].Version)
	require.Len(t, m.MetadataProps, 1)
	assert.Equal(t, "source", m.MetadataProps[0].Key)
	assert.Equal(t, "unit-test", m.MetadataProps[0].Value)

	g := m.Graph
	require.NotNil(t, g)
	assert.Equal(t, "test-graph", g.Name)

	require.Len(t, g.Node, 1)
	n := g.Node[0]
	assert.Equal(t, []string{"x", "w"}, n.Input)
	assert.Equal(t, []string{"y"}, n.Output)
	assert.Equal(t, "conv0", n.Name)
	assert.Equal(t, "Conv", n.OpType)
	require.Len(t, n.Attribute, 2)
	assert.Equal(t, "strides", n.Attribute[0].Name)
	assert.Equal(t, AttributeProto_INTS, n.Attribute[0].Type)
	assert.Equal(t, []int64{2, 2}, n.Attribute[0].Ints)
	assert.Equal(t, "alpha", n.Attribute[1].Name)
	assert.EqualValues(t, 0.5, n.Attribute[1].F)

	require.Len(t, g.Initializer, 1)
	w := g.Initializer[0]
	assert.Equal(t, "w", w.Name)
	assert.Equal(t, TensorProto_FLOAT, w.DataType)
	assert.Equal(t, []int64{1, 2}, w.Dims)
	assert.Len(t, w.RawData, 8)

	require.Len(t, g.Input, 1)
	x := g.Input[0]
	assert.Equal(t, "x", x.Name)
	require.NotNil(t, x.Type)
	require.NotNil(t, x.Type.TensorType)
	assert.Equal(t, TensorProto_FLOAT, x.Type.TensorType.ElemType)
	dims := x.Type.TensorType.Shape.Dim
	require.Len(t, dims, 2)
	assert.Equal(t, "batch", dims[0].DimParam)
	assert.EqualValues(t, 3, dims[1].DimValue)

	require.Len(t, g.Output, 1)
	assert.Equal(t, "y", g.Output[0].Name)
}

func TestUnmarshalPackedFloats(t *testing.T) {
	var packed []byte
	packed = protowire.AppendFixed32(packed, math.Float32bits(1))
	packed = protowire.AppendFixed32(packed, math.Float32bits(-2.5))
	var attr []byte
	attr = appendStringField(attr, 1, "scales")
	attr = appendBytesField(attr, 7, packed)
	attr = appendVarintField(attr, 20, uint64(AttributeProto_FLOATS))
	var node []byte
	node = appendStringField(node, 4, "Upsample")
	node = appendBytesField(node, 5, attr)
	var graph []byte
	graph = appendBytesField(graph, 1, node)
	var model []byte
	model = appendVarintField(model, 1, 8)
	model = appendBytesField(model, 7, graph)

	m, err := UnmarshalModel(model)
	require.NoError(t, err)
	require.Len(t, m.Graph.Node, 1)
	require.Len(t, m.Graph.Node[0].Attribute, 1)
	assert.Equal(t, []float32{1, -2.5}, m.Graph.Node[0].Attribute[0].Floats)
}

func TestUnmarshalTruncatedInput(t *testing.T) {
	data := buildTestModel()
	_, err := UnmarshalModel(data[:len(data)-3])
	assert.Error(t, err)
}
