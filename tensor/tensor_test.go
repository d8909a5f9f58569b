package tensor

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromProtoRawFloat32(t *testing.T) {
	values := []float32{1.5, -2, 3.25, 0, 7, -0.5}
	raw := make([]byte, 4*len(values))
	for ii, v := range values {
		binary.LittleEndian.PutUint32(raw[4*ii:], math.Float32bits(v))
	}
	got, err := FromProto(&protos.TensorProto{
		Name:     "w",
		DataType: protos.TensorProto_FLOAT,
		Dims:     []int64{2, 3},
		RawData:  raw,
	})
	require.NoError(t, err)
	assert.Equal(t, "w", got.Name)
	assert.Equal(t, Float32, got.DType)
	assert.Equal(t, []int{2, 3}, got.Dims)
	assert.Equal(t, values, got.Float32s)
}

func TestFromProtoRawInt64(t *testing.T) {
	values := []int64{1, -1, 300}
	raw := make([]byte, 8*len(values))
	for ii, v := range values {
		binary.LittleEndian.PutUint64(raw[8*ii:], uint64(v))
	}
	got, err := FromProto(&protos.TensorProto{
		Name:     "shape",
		DataType: protos.TensorProto_INT64,
		Dims:     []int64{3},
		RawData:  raw,
	})
	require.NoError(t, err)
	assert.Equal(t, Int64, got.DType)
	assert.Equal(t, values, got.Int64s)

	ints, err := got.Ints()
	require.NoError(t, err)
	assert.Equal(t, []int{1, -1, 300}, ints)
}

func TestFromProtoRawFloat16(t *testing.T) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint16(raw[0:], float16.Fromfloat32(1.5).Bits())
	binary.LittleEndian.PutUint16(raw[2:], float16.Fromfloat32(-0.25).Bits())
	got, err := FromProto(&protos.TensorProto{
		DataType: protos.TensorProto_FLOAT16,
		Dims:     []int64{2},
		RawData:  raw,
	})
	require.NoError(t, err)
	assert.Equal(t, Float16, got.DType)
	assert.Equal(t, []float32{1.5, -0.25}, got.Float32s)
}

func TestFromProtoTypedFields(t *testing.T) {
	floats, err := FromProto(&protos.TensorProto{
		DataType:  protos.TensorProto_FLOAT,
		Dims:      []int64{2},
		FloatData: []float32{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, floats.Float32s)

	// Small integer types ride in int32_data.
	ints, err := FromProto(&protos.TensorProto{
		DataType:  protos.TensorProto_INT32,
		Dims:      []int64{3},
		Int32Data: []int32{-1, 0, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, Int32, ints.DType)
	assert.Equal(t, []int64{-1, 0, 5}, ints.Int64s)

	bools, err := FromProto(&protos.TensorProto{
		DataType:  protos.TensorProto_BOOL,
		Dims:      []int64{2},
		Int32Data: []int32{0, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, bools.Bools)

	halfs, err := FromProto(&protos.TensorProto{
		DataType:  protos.TensorProto_FLOAT16,
		Dims:      []int64{1},
		Int32Data: []int32{int32(float16.Fromfloat32(2).Bits())},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, halfs.Float32s)
}

func TestFromProtoErrors(t *testing.T) {
	_, err := FromProto(nil)
	assert.Error(t, err)

	// Element count disagrees with the dims.
	_, err = FromProto(&protos.TensorProto{
		DataType:  protos.TensorProto_FLOAT,
		Dims:      []int64{2, 2},
		FloatData: []float32{1, 2, 3},
	})
	assert.Error(t, err)

	// Raw data byte count disagrees with the dims.
	_, err = FromProto(&protos.TensorProto{
		DataType: protos.TensorProto_FLOAT,
		Dims:     []int64{2},
		RawData:  []byte{0, 0, 0, 0},
	})
	assert.Error(t, err)

	_, err = FromProto(&protos.TensorProto{
		DataType: protos.TensorProto_STRING,
		Dims:     []int64{1},
	})
	assert.Error(t, err)
}

func TestTranspose(t *testing.T) {
	x := FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	got, err := x.Transpose(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, got.Dims)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got.Float32s)

	// Transposing back restores the original.
	back, err := got.Transpose(1, 0)
	require.NoError(t, err)
	assert.True(t, back.Equal(x))

	// The input is never mutated.
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, x.Float32s)
}

func TestTransposeRank4(t *testing.T) {
	data := make([]float32, 2*3*4*5)
	for ii := range data {
		data[ii] = float32(ii)
	}
	x := FromFloat32s(data, 2, 3, 4, 5)
	nhwc, err := x.Transpose(0, 2, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5, 3}, nhwc.Dims)
	// Element (b, h, w, c) must equal source element (b, c, h, w).
	b, c, h, w := 1, 2, 3, 4
	src := ((b*3+c)*4+h)*5 + w
	dst := ((b*4+h)*5+w)*3 + c
	assert.Equal(t, x.Float32s[src], nhwc.Float32s[dst])

	back, err := nhwc.Transpose(0, 3, 1, 2)
	require.NoError(t, err)
	assert.True(t, back.Equal(x))
}

func TestTransposeValidation(t *testing.T) {
	x := FromFloat32s([]float32{1, 2}, 2)
	_, err := x.Transpose(0, 1)
	assert.Error(t, err)
	_, err = x.Transpose(1)
	assert.Error(t, err)

	y := FromFloat32s([]float32{1, 2, 3, 4}, 2, 2)
	_, err = y.Transpose(0, 0)
	assert.Error(t, err)
}

func TestReshape(t *testing.T) {
	x := FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	got, err := x.Reshape(3, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, got.Dims)
	assert.Equal(t, x.Float32s, got.Float32s)
	// The original keeps its dims.
	assert.Equal(t, []int{2, 3}, x.Dims)

	_, err = x.Reshape(4)
	assert.Error(t, err)
}

func TestFloatsAndInts(t *testing.T) {
	ints := FromInt64s([]int64{1, 2, 3}, 3)
	asFloats, err := ints.Floats()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, asFloats)

	floats := FromFloat32s([]float32{1.5}, 1)
	_, err = floats.Ints()
	assert.Error(t, err)

	bools := FromBools([]bool{true}, 1)
	_, err = bools.Floats()
	assert.Error(t, err)
}
