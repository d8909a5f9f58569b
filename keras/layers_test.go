package keras

import (
	"testing"

	"github.com/ray0809/onnx-to-keras/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callOne(t *testing.T, l Layer, inputs ...*tensor.Tensor) *tensor.Tensor {
	t.Helper()
	outs, err := l.Call(inputs)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	return outs[0]
}

func TestConv2DSamePadding(t *testing.T) {
	// 3x3 single-channel input, 2x2 ones kernel. With "same" the one extra
	// pad cell lands on the bottom/right.
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 3, 3, 1)
	l := &Conv2D{
		LayerBase:    LayerBase{LayerName: "conv"},
		Filters:      1,
		KernelSize:   [2]int{2, 2},
		Strides:      [2]int{1, 1},
		DilationRate: [2]int{1, 1},
		Padding:      PaddingSame,
		Groups:       1,
		Kernel:       tensor.FromFloat32s([]float32{1, 1, 1, 1}, 2, 2, 1, 1),
	}
	got := callOne(t, l, x)
	assert.Equal(t, []int{1, 3, 3, 1}, got.Dims)
	assert.Equal(t, []float32{12, 16, 9, 24, 28, 15, 15, 17, 9}, got.Float32s)
}

func TestConv2DValidWithBias(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 3, 3, 1)
	l := &Conv2D{
		LayerBase:    LayerBase{LayerName: "conv"},
		Filters:      1,
		KernelSize:   [2]int{2, 2},
		Strides:      [2]int{1, 1},
		DilationRate: [2]int{1, 1},
		Padding:      PaddingValid,
		Groups:       1,
		UseBias:      true,
		Kernel:       tensor.FromFloat32s([]float32{1, 1, 1, 1}, 2, 2, 1, 1),
		Bias:         tensor.FromFloat32s([]float32{100}, 1),
	}
	got := callOne(t, l, x)
	assert.Equal(t, []int{1, 2, 2, 1}, got.Dims)
	assert.Equal(t, []float32{112, 116, 124, 128}, got.Float32s)
}

func TestDepthwiseConv2D(t *testing.T) {
	// 1x1 kernel scaling channel 0 by 2 and channel 1 by 3.
	x := tensor.FromFloat32s([]float32{1, 10, 2, 20, 3, 30, 4, 40}, 1, 2, 2, 2)
	l := &DepthwiseConv2D{
		LayerBase:    LayerBase{LayerName: "dw"},
		KernelSize:   [2]int{1, 1},
		Strides:      [2]int{1, 1},
		DilationRate: [2]int{1, 1},
		Padding:      PaddingValid,
		Kernel:       tensor.FromFloat32s([]float32{2, 3}, 1, 1, 2, 1),
	}
	got := callOne(t, l, x)
	assert.Equal(t, []int{1, 2, 2, 2}, got.Dims)
	assert.Equal(t, []float32{2, 30, 4, 60, 6, 90, 8, 120}, got.Float32s)
}

func TestConv2DTransposeStride2(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4}, 1, 2, 2, 1)
	l := &Conv2DTranspose{
		LayerBase:    LayerBase{LayerName: "deconv"},
		Filters:      1,
		KernelSize:   [2]int{2, 2},
		Strides:      [2]int{2, 2},
		DilationRate: [2]int{1, 1},
		Padding:      PaddingValid,
		Kernel:       tensor.FromFloat32s([]float32{1, 1, 1, 1}, 2, 2, 1, 1),
	}
	got := callOne(t, l, x)
	assert.Equal(t, []int{1, 4, 4, 1}, got.Dims)
	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, got.Float32s)
}

func TestPooling(t *testing.T) {
	data := make([]float32, 16)
	for ii := range data {
		data[ii] = float32(ii + 1)
	}
	x := tensor.FromFloat32s(data, 1, 4, 4, 1)

	maxPool := &MaxPooling2D{
		LayerBase: LayerBase{LayerName: "max"},
		PoolSize:  [2]int{2, 2},
		Strides:   [2]int{2, 2},
		Padding:   PaddingValid,
	}
	got := callOne(t, maxPool, x)
	assert.Equal(t, []int{1, 2, 2, 1}, got.Dims)
	assert.Equal(t, []float32{6, 8, 14, 16}, got.Float32s)

	avgPool := &AveragePooling2D{
		LayerBase: LayerBase{LayerName: "avg"},
		PoolSize:  [2]int{2, 2},
		Strides:   [2]int{2, 2},
		Padding:   PaddingValid,
	}
	got = callOne(t, avgPool, x)
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, got.Float32s)
}

func TestGlobalAveragePooling2D(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 10, 2, 20, 3, 30, 4, 40}, 1, 2, 2, 2)

	flat := callOne(t, &GlobalAveragePooling2D{LayerBase: LayerBase{LayerName: "gap"}}, x)
	assert.Equal(t, []int{1, 2}, flat.Dims)
	assert.Equal(t, []float32{2.5, 25}, flat.Float32s)

	kept := callOne(t, &GlobalAveragePooling2D{LayerBase: LayerBase{LayerName: "gap"}, KeepDims: true}, x)
	assert.Equal(t, []int{1, 1, 1, 2}, kept.Dims)
	assert.Equal(t, []float32{2.5, 25}, kept.Float32s)
}

func TestDense(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	l := &Dense{
		LayerBase: LayerBase{LayerName: "fc"},
		Units:     2,
		UseBias:   true,
		Kernel:    tensor.FromFloat32s([]float32{1, 0, 0, 1, 1, 1}, 3, 2),
		Bias:      tensor.FromFloat32s([]float32{1, -1}, 2),
	}
	got := callOne(t, l, x)
	assert.Equal(t, []int{2, 2}, got.Dims)
	assert.Equal(t, []float32{5, 4, 11, 10}, got.Float32s)

	// Feature-count mismatch is an error, not a silent misread.
	_, err := l.Call([]*tensor.Tensor{tensor.FromFloat32s([]float32{1, 2}, 1, 2)})
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 1, 3, 2)
	got := callOne(t, &Flatten{LayerBase{LayerName: "flat"}}, x)
	assert.Equal(t, []int{1, 6}, got.Dims)
	assert.Equal(t, x.Float32s, got.Float32s)
}

func TestBatchNormalization(t *testing.T) {
	l := &BatchNormalization{
		LayerBase:      LayerBase{LayerName: "bn"},
		Epsilon:        0,
		Momentum:       0.9,
		Gamma:          tensor.FromFloat32s([]float32{1, 2}, 2),
		Beta:           tensor.FromFloat32s([]float32{0, 1}, 2),
		MovingMean:     tensor.FromFloat32s([]float32{1, 2}, 2),
		MovingVariance: tensor.FromFloat32s([]float32{4, 9}, 2),
	}
	got := callOne(t, l, tensor.FromFloat32s([]float32{3, 5}, 1, 2))
	require.Len(t, got.Float32s, 2)
	assert.InDelta(t, 1, got.Float32s[0], 1e-6)
	assert.InDelta(t, 3, got.Float32s[1], 1e-6)
}

func TestBinaryOps(t *testing.T) {
	a := tensor.FromFloat32s([]float32{1, 2, 3, 4}, 2, 2)
	b := tensor.FromFloat32s([]float32{10, 20}, 2)

	add, err := NewBinaryOp(LayerBase{LayerName: "add"}, "Add", nil, false)
	require.NoError(t, err)
	got := callOne(t, add, a, b)
	assert.Equal(t, []int{2, 2}, got.Dims)
	assert.Equal(t, []float32{11, 22, 13, 24}, got.Float32s)

	// Baked constant on the left of a non-commutative op.
	sub, err := NewBinaryOp(LayerBase{LayerName: "sub"}, "Subtract",
		tensor.FromFloat32s([]float32{100}, 1), true)
	require.NoError(t, err)
	got = callOne(t, sub, a)
	assert.Equal(t, []float32{99, 98, 97, 96}, got.Float32s)

	eq, err := NewBinaryOp(LayerBase{LayerName: "eq"}, "Equal",
		tensor.FromFloat32s([]float32{3}, 1), false)
	require.NoError(t, err)
	got = callOne(t, eq, a)
	assert.Equal(t, []float32{0, 0, 1, 0}, got.Float32s)

	_, err = NewBinaryOp(LayerBase{LayerName: "bad"}, "Modulo", nil, false)
	assert.Error(t, err)
}

func TestConcatenate(t *testing.T) {
	a := tensor.FromFloat32s([]float32{1, 2}, 1, 2)
	b := tensor.FromFloat32s([]float32{3, 4, 5}, 1, 3)
	got := callOne(t, &Concatenate{LayerBase: LayerBase{LayerName: "cat"}, Axis: -1}, a, b)
	assert.Equal(t, []int{1, 5}, got.Dims)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, got.Float32s)

	c := tensor.FromFloat32s([]float32{1, 2, 3, 4}, 2, 2)
	d := tensor.FromFloat32s([]float32{5, 6}, 1, 2)
	got = callOne(t, &Concatenate{LayerBase: LayerBase{LayerName: "cat"}, Axis: 0}, c, d)
	assert.Equal(t, []int{3, 2}, got.Dims)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, got.Float32s)
}

func TestReshapeLayer(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 2, 3, 1)
	got := callOne(t, &Reshape{LayerBase: LayerBase{LayerName: "r"}, TargetShape: []int{-1}}, x)
	assert.Equal(t, []int{2, 3}, got.Dims)

	_, err := (&Reshape{LayerBase: LayerBase{LayerName: "r"}, TargetShape: []int{-1, -1}}).
		Call([]*tensor.Tensor{x})
	assert.Error(t, err)
}

func TestPermuteLayer(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	got := callOne(t, &Permute{LayerBase: LayerBase{LayerName: "p"}, Dims: []int{2, 1}}, x)
	assert.Equal(t, []int{1, 3, 2}, got.Dims)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got.Float32s)
}

func TestZeroPadding2D(t *testing.T) {
	x := tensor.FromFloat32s([]float32{5}, 1, 1, 1, 1)
	got := callOne(t, &ZeroPadding2D{
		LayerBase: LayerBase{LayerName: "pad"},
		Padding:   [2][2]int{{1, 0}, {0, 1}},
	}, x)
	assert.Equal(t, []int{1, 2, 2, 1}, got.Dims)
	assert.Equal(t, []float32{0, 0, 5, 0}, got.Float32s)
}

func TestUpSampling2D(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4}, 1, 2, 2, 1)
	got := callOne(t, &UpSampling2D{
		LayerBase: LayerBase{LayerName: "up"},
		Size:      [2]int{2, 2},
	}, x)
	assert.Equal(t, []int{1, 4, 4, 1}, got.Dims)
	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, got.Float32s)

	row := tensor.FromFloat32s([]float32{1, 2}, 1, 1, 2, 1)
	got = callOne(t, &UpSampling2D{
		LayerBase:     LayerBase{LayerName: "up"},
		Size:          [2]int{1, 2},
		Interpolation: "bilinear",
	}, row)
	assert.Equal(t, []int{1, 1, 4, 1}, got.Dims)
	want := []float32{1, 4.0 / 3, 5.0 / 3, 2}
	for ii := range want {
		assert.InDelta(t, want[ii], got.Float32s[ii], 1e-6)
	}
}

func TestSliceLayer(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4}, 1, 4)
	got := callOne(t, &Slice{
		LayerBase: LayerBase{LayerName: "s"},
		Starts:    []int{0, 1},
		Ends:      []int{1, 3},
	}, x)
	assert.Equal(t, []int{1, 2}, got.Dims)
	assert.Equal(t, []float32{2, 3}, got.Float32s)

	// Negative indices count from the end.
	got = callOne(t, &Slice{
		LayerBase: LayerBase{LayerName: "s"},
		Starts:    []int{0, -2},
		Ends:      []int{1, 4},
	}, x)
	assert.Equal(t, []float32{3, 4}, got.Float32s)
}

func TestSplitLayer(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4}, 1, 4)
	outs, err := (&Split{
		LayerBase:  LayerBase{LayerName: "split"},
		Axis:       1,
		SizeSplits: []int{1, 3},
	}).Call([]*tensor.Tensor{x})
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, []float32{1}, outs[0].Float32s)
	assert.Equal(t, []float32{2, 3, 4}, outs[1].Float32s)
}

func TestCastLayer(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1.9, -1.2}, 2)
	got := callOne(t, &Cast{LayerBase: LayerBase{LayerName: "c"}, To: tensor.Int64}, x)
	assert.Equal(t, tensor.Int64, got.DType)
	assert.Equal(t, []int64{1, -1}, got.Int64s)
}

func TestReduceLayer(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, 2, 3)

	mean := callOne(t, &Reduce{LayerBase: LayerBase{LayerName: "m"}, Fn: "mean", Axes: []int{1}}, x)
	assert.Equal(t, []int{2}, mean.Dims)
	assert.Equal(t, []float32{2, 5}, mean.Float32s)

	kept := callOne(t, &Reduce{LayerBase: LayerBase{LayerName: "m"}, Fn: "sum", Axes: []int{1}, KeepDims: true}, x)
	assert.Equal(t, []int{2, 1}, kept.Dims)
	assert.Equal(t, []float32{6, 15}, kept.Float32s)

	maxed := callOne(t, &Reduce{LayerBase: LayerBase{LayerName: "m"}, Fn: "max", Axes: []int{0}}, x)
	assert.Equal(t, []float32{4, 5, 6}, maxed.Float32s)
}

func TestActivations(t *testing.T) {
	x := tensor.FromFloat32s([]float32{-2, -1, 0, 3}, 4)

	relu := callOne(t, &ReLU{LayerBase: LayerBase{LayerName: "relu"}}, x)
	assert.Equal(t, []float32{0, 0, 0, 3}, relu.Float32s)

	clipped := callOne(t, &ReLU{LayerBase: LayerBase{LayerName: "relu6"}, MaxValue: 2, HasMax: true}, x)
	assert.Equal(t, []float32{0, 0, 0, 2}, clipped.Float32s)

	leaky := callOne(t, &LeakyReLU{LayerBase: LayerBase{LayerName: "lr"}, Alpha: 0.5}, x)
	assert.Equal(t, []float32{-1, -0.5, 0, 3}, leaky.Float32s)

	sigmoid := callOne(t, &Activation{LayerBase: LayerBase{LayerName: "sig"}, Fn: "sigmoid"}, x)
	assert.InDelta(t, 0.5, sigmoid.Float32s[2], 1e-6)
	assert.InDelta(t, 0.95257413, sigmoid.Float32s[3], 1e-6)

	_, err := (&Activation{LayerBase: LayerBase{LayerName: "bad"}, Fn: "gelu"}).
		Call([]*tensor.Tensor{x})
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	x := tensor.FromFloat32s([]float32{1, 2, 3}, 1, 3)
	got := callOne(t, &Softmax{LayerBase: LayerBase{LayerName: "sm"}, Axis: -1}, x)
	var sum float32
	for _, v := range got.Float32s {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.True(t, got.Float32s[0] < got.Float32s[1] && got.Float32s[1] < got.Float32s[2])
	assert.InDelta(t, 0.66524094, got.Float32s[2], 1e-6)
}

func TestPReLU(t *testing.T) {
	x := tensor.FromFloat32s([]float32{-4, 2, -6, 3}, 1, 2, 2)
	l := &PReLU{
		LayerBase: LayerBase{LayerName: "prelu"},
		Alpha:     tensor.FromFloat32s([]float32{0.5, 0.25}, 2),
	}
	got := callOne(t, l, x)
	assert.Equal(t, []float32{-2, 2, -3, 3}, got.Float32s)
}
