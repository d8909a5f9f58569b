package convert

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermuteWeightConvKernel(t *testing.T) {
	const outC, inC, kH, kW = 4, 3, 2, 2
	data := make([]float32, outC*inC*kH*kW)
	for ii := range data {
		data[ii] = float32(ii)
	}
	src := tensor.FromFloat32s(data, outC, inC, kH, kW)
	src.Name = "conv/w"

	out, err := PermuteWeight(src, KernelConv)
	require.NoError(t, err)
	require.Equal(t, []int{kH, kW, inC, outC}, out.Dims)

	// Element identity: src[o][i][y][x] == out[y][x][i][o].
	for o := 0; o < outC; o++ {
		for i := 0; i < inC; i++ {
			for y := 0; y < kH; y++ {
				for x := 0; x < kW; x++ {
					srcIdx := ((o*inC+i)*kH+y)*kW + x
					outIdx := ((y*kW+x)*inC+i)*outC + o
					assert.Equal(t, src.Float32s[srcIdx], out.Float32s[outIdx])
				}
			}
		}
	}

	// The source is untouched.
	assert.Equal(t, []int{outC, inC, kH, kW}, src.Dims)
	assert.Equal(t, data, src.Float32s)

	// Inverse of the permutation restores the original.
	back, err := out.Transpose(3, 2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, src.Dims, back.Dims)
	assert.Equal(t, src.Float32s, back.Float32s)
}

func TestPermuteWeightDepthwiseKernel(t *testing.T) {
	const outC, kH, kW = 3, 2, 2
	data := make([]float32, outC*kH*kW)
	for ii := range data {
		data[ii] = float32(ii)
	}
	src := tensor.FromFloat32s(data, outC, 1, kH, kW)

	out, err := PermuteWeight(src, KernelDepthwise)
	require.NoError(t, err)
	require.Equal(t, []int{kH, kW, outC, 1}, out.Dims)
	for c := 0; c < outC; c++ {
		for y := 0; y < kH; y++ {
			for x := 0; x < kW; x++ {
				srcIdx := (c*kH+y)*kW + x
				outIdx := (y*kW+x)*outC + c
				assert.Equal(t, src.Float32s[srcIdx], out.Float32s[outIdx])
			}
		}
	}
}

func TestPermuteWeightDenseMatrix(t *testing.T) {
	src := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out, err := PermuteWeight(src, DenseMatrix)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Dims)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Float32s)
}

func TestPermuteWeightPassthrough(t *testing.T) {
	bias := tensor.FromFloat32s([]float32{1, 2, 3}, 3)
	out, err := PermuteWeight(bias, Bias)
	require.NoError(t, err)
	assert.Same(t, bias, out)

	any4d := tensor.FromFloat32s(make([]float32, 16), 2, 2, 2, 2)
	out, err = PermuteWeight(any4d, RoleNone)
	require.NoError(t, err)
	assert.Same(t, any4d, out)
}

func TestPermuteWeightRankMismatch(t *testing.T) {
	cases := []struct {
		name string
		t    *tensor.Tensor
		role WeightRole
	}{
		{"conv kernel rank 2", tensor.FromFloat32s([]float32{1, 2}, 1, 2), KernelConv},
		{"dense matrix rank 1", tensor.FromFloat32s([]float32{1, 2}, 2), DenseMatrix},
		{"bias rank 2", tensor.FromFloat32s([]float32{1, 2}, 1, 2), Bias},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.t.Name = "w"
			_, err := PermuteWeight(tc.t, tc.role)
			require.Error(t, err)
			var shapeErr *WeightShapeError
			require.True(t, errors.As(err, &shapeErr), "got %v", err)
			assert.Equal(t, "w", shapeErr.TensorName)
			assert.Equal(t, tc.role, shapeErr.Role)
		})
	}
}
