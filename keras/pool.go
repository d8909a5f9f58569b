package keras

import (
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// MaxPooling2D is a spatial max-pooling over NHWC inputs.
type MaxPooling2D struct {
	LayerBase
	PoolSize [2]int
	Strides  [2]int
	Padding  Padding
}

// ClassName implements Layer.
func (l *MaxPooling2D) ClassName() string { return "MaxPooling2D" }

// Config implements Layer.
func (l *MaxPooling2D) Config() map[string]any {
	return map[string]any{
		"pool_size": l.PoolSize,
		"strides":   l.Strides,
		"padding":   string(l.Padding),
	}
}

// Weights implements Layer.
func (l *MaxPooling2D) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *MaxPooling2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return poolCall(l, inputs, l.PoolSize, l.Strides, l.Padding, func(window []float32) float32 {
		m := window[0]
		for _, v := range window[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

// AveragePooling2D is a spatial average-pooling over NHWC inputs.
type AveragePooling2D struct {
	LayerBase
	PoolSize [2]int
	Strides  [2]int
	Padding  Padding
}

// ClassName implements Layer.
func (l *AveragePooling2D) ClassName() string { return "AveragePooling2D" }

// Config implements Layer.
func (l *AveragePooling2D) Config() map[string]any {
	return map[string]any{
		"pool_size": l.PoolSize,
		"strides":   l.Strides,
		"padding":   string(l.Padding),
	}
}

// Weights implements Layer.
func (l *AveragePooling2D) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *AveragePooling2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return poolCall(l, inputs, l.PoolSize, l.Strides, l.Padding, func(window []float32) float32 {
		var sum float32
		for _, v := range window {
			sum += v
		}
		return sum / float32(len(window))
	})
}

func poolCall(l Layer, inputs []*tensor.Tensor, kernel, strides [2]int, padding Padding,
	fn func(window []float32) float32) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (%s) expects a rank-4 NHWC input, got %s", l.Name(), l.ClassName(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	out, outDims := pool2dNHWC(xData, [4]int(x.Dims[:4]), kernel, strides, padding, fn)
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims[:]...)}, nil
}

// GlobalAveragePooling2D averages over the spatial axes of an NHWC input.
// With KeepDims the output stays rank-4 with 1x1 spatial dims, otherwise it
// is (batch, channels).
type GlobalAveragePooling2D struct {
	LayerBase
	KeepDims bool
}

// ClassName implements Layer.
func (l *GlobalAveragePooling2D) ClassName() string { return "GlobalAveragePooling2D" }

// Config implements Layer.
func (l *GlobalAveragePooling2D) Config() map[string]any {
	return map[string]any{"keepdims": l.KeepDims}
}

// Weights implements Layer.
func (l *GlobalAveragePooling2D) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *GlobalAveragePooling2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (GlobalAveragePooling2D) expects a rank-4 NHWC input, got %s", l.Name(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	n, h, w, c := x.Dims[0], x.Dims[1], x.Dims[2], x.Dims[3]
	out := make([]float32, n*c)
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			var sum float32
			for y := 0; y < h; y++ {
				for xx := 0; xx < w; xx++ {
					sum += xData[((b*h+y)*w+xx)*c+ch]
				}
			}
			out[b*c+ch] = sum / float32(h*w)
		}
	}
	if l.KeepDims {
		return []*tensor.Tensor{tensor.FromFloat32s(out, n, 1, 1, c)}, nil
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, n, c)}, nil
}
