package onnx

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tensorValueInfo(name string, dims ...int64) *protos.ValueInfoProto {
	shape := &protos.TensorShapeProto{}
	for _, d := range dims {
		dim := &protos.TensorShapeProto_Dimension{DimValue: d}
		if d < 0 {
			dim = &protos.TensorShapeProto_Dimension{DimParam: "batch"}
		}
		shape.Dim = append(shape.Dim, dim)
	}
	return &protos.ValueInfoProto{
		Name: name,
		Type: &protos.TypeProto{
			TensorType: &protos.TypeProto_Tensor{
				ElemType: protos.TensorProto_FLOAT,
				Shape:    shape,
			},
		},
	}
}

func floatInitializer(name string, data []float32, dims ...int64) *protos.TensorProto {
	return &protos.TensorProto{
		Name:      name,
		DataType:  protos.TensorProto_FLOAT,
		Dims:      dims,
		FloatData: data,
	}
}

func modelWith(graph *protos.GraphProto) *protos.ModelProto {
	return &protos.ModelProto{IrVersion: 8, Graph: graph}
}

func TestBuildValid(t *testing.T) {
	m, err := Build(modelWith(&protos.GraphProto{
		Name: "g",
		Node: []*protos.NodeProto{
			{OpType: "Relu", Name: "relu0", Input: []string{"x"}, Output: []string{"y"}},
		},
		Initializer: []*protos.TensorProto{floatInitializer("w", []float32{1, 2}, 2)},
		Input: []*protos.ValueInfoProto{
			tensorValueInfo("x", -1, 3),
			tensorValueInfo("w", 2), // redundant initializer-as-input
		},
		Output: []*protos.ValueInfoProto{tensorValueInfo("y", -1, 3)},
	}))
	require.NoError(t, err)

	// Initializers listed as graph inputs are not runtime inputs.
	assert.Equal(t, []string{"x"}, m.InputNames)
	assert.Equal(t, []string{"y"}, m.OutputNames)

	w, found := m.Initializer("w")
	require.True(t, found)
	assert.Equal(t, []float32{1, 2}, w.Float32s)

	producer, found := m.Producer("y")
	require.True(t, found)
	assert.Equal(t, "relu0", producer.Name)
	_, found = m.Producer("x")
	assert.False(t, found)
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name  string
		proto *protos.ModelProto
	}{
		{"no graph", &protos.ModelProto{IrVersion: 8}},
		{"ir version too old", &protos.ModelProto{IrVersion: 2, Graph: &protos.GraphProto{}}},
		{"ir version unknown", &protos.ModelProto{IrVersion: 99, Graph: &protos.GraphProto{}}},
		{"unnamed initializer", modelWith(&protos.GraphProto{
			Initializer: []*protos.TensorProto{floatInitializer("", nil)},
		})},
		{"duplicate initializer", modelWith(&protos.GraphProto{
			Initializer: []*protos.TensorProto{
				floatInitializer("w", []float32{1}, 1),
				floatInitializer("w", []float32{2}, 1),
			},
		})},
		{"two producers for one tensor", modelWith(&protos.GraphProto{
			Input: []*protos.ValueInfoProto{tensorValueInfo("x", 1)},
			Node: []*protos.NodeProto{
				{OpType: "Relu", Name: "a", Input: []string{"x"}, Output: []string{"y"}},
				{OpType: "Relu", Name: "b", Input: []string{"x"}, Output: []string{"y"}},
			},
		})},
		{"node output shadows initializer", modelWith(&protos.GraphProto{
			Initializer: []*protos.TensorProto{floatInitializer("w", []float32{1}, 1)},
			Node: []*protos.NodeProto{
				{OpType: "Relu", Name: "a", Input: []string{"w"}, Output: []string{"w"}},
			},
		})},
		{"dangling node input", modelWith(&protos.GraphProto{
			Node: []*protos.NodeProto{
				{OpType: "Relu", Name: "a", Input: []string{"nowhere"}, Output: []string{"y"}},
			},
		})},
		{"unproduced graph output", modelWith(&protos.GraphProto{
			Output: []*protos.ValueInfoProto{tensorValueInfo("y", 1)},
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.proto)
			require.Error(t, err)
			var malformed *MalformedGraphError
			assert.True(t, errors.As(err, &malformed), "want MalformedGraphError, got %v", err)
		})
	}
}

func TestInputShape(t *testing.T) {
	m, err := Build(modelWith(&protos.GraphProto{
		Input:  []*protos.ValueInfoProto{tensorValueInfo("x", -1, 3, 224, 224)},
		Output: []*protos.ValueInfoProto{tensorValueInfo("x", -1, 3, 224, 224)},
		Node: []*protos.NodeProto{
			{OpType: "Identity", Input: []string{"x"}, Output: []string{"id"}},
		},
	}))
	require.NoError(t, err)

	dims, dtype, err := m.InputShape("x")
	require.NoError(t, err)
	assert.Equal(t, []int{-1, 3, 224, 224}, dims)
	assert.Equal(t, tensor.Float32, dtype)

	_, _, err = m.InputShape("missing")
	assert.Error(t, err)
}

func TestAttributeAccessors(t *testing.T) {
	node := &protos.NodeProto{
		OpType: "Conv",
		Attribute: []*protos.AttributeProto{
			{Name: "group", Type: protos.AttributeProto_INT, I: 2},
			{Name: "strides", Type: protos.AttributeProto_INTS, Ints: []int64{2, 2}},
			{Name: "alpha", Type: protos.AttributeProto_FLOAT, F: 0.1},
			{Name: "scales", Type: protos.AttributeProto_FLOATS, Floats: []float32{1, 1, 2, 2}},
			{Name: "auto_pad", Type: protos.AttributeProto_STRING, S: []byte("SAME_UPPER")},
			{Name: "value", Type: protos.AttributeProto_TENSOR,
				T: floatInitializer("", []float32{7}, 1)},
		},
	}

	assert.Equal(t, 2, MustGetIntAttr(node, "group"))
	assert.Equal(t, 2, GetIntAttrOr(node, "group", 1))
	assert.Equal(t, 1, GetIntAttrOr(node, "missing", 1))
	assert.True(t, GetBoolAttrOr(node, "group", false))
	assert.False(t, GetBoolAttrOr(node, "missing", false))
	assert.Equal(t, []int{2, 2}, MustGetIntsAttr(node, "strides"))
	assert.Equal(t, []int{2, 2}, GetIntsAttrOr(node, "strides", nil))
	assert.Nil(t, GetIntsAttrOr(node, "missing", nil))
	// A scalar int is accepted where a list is expected.
	assert.Equal(t, []int{2}, GetIntsAttrOr(node, "group", nil))
	assert.EqualValues(t, 0.1, GetFloatAttrOr(node, "alpha", 0))
	assert.Equal(t, []float32{1, 1, 2, 2}, GetFloatsAttrOr(node, "scales", nil))
	assert.Equal(t, "SAME_UPPER", GetStringAttrOr(node, "auto_pad", "NOTSET"))
	assert.Equal(t, "NOTSET", GetStringAttrOr(node, "missing", "NOTSET"))
	assert.Equal(t, []float32{7}, MustGetTensorAttr(node, "value").FloatData)

	assert.Panics(t, func() { MustGetIntAttr(node, "missing") })
	assert.Panics(t, func() { MustGetIntAttr(node, "alpha") }) // mistyped
	assert.Panics(t, func() { GetStringAttrOr(node, "group", "") })
}
