package keras

import (
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Conv2D is a 2D convolution over NHWC inputs.
// Kernel layout: (kernelH, kernelW, inChannels/groups, filters).
type Conv2D struct {
	LayerBase
	Filters      int
	KernelSize   [2]int
	Strides      [2]int
	DilationRate [2]int
	Padding      Padding
	Groups       int
	UseBias      bool

	Kernel *tensor.Tensor
	Bias   *tensor.Tensor
}

// ClassName implements Layer.
func (l *Conv2D) ClassName() string { return "Conv2D" }

// Config implements Layer.
func (l *Conv2D) Config() map[string]any {
	return map[string]any{
		"filters":       l.Filters,
		"kernel_size":   l.KernelSize,
		"strides":       l.Strides,
		"dilation_rate": l.DilationRate,
		"padding":       string(l.Padding),
		"groups":        l.Groups,
		"use_bias":      l.UseBias,
	}
}

// Weights implements Layer.
func (l *Conv2D) Weights() []*tensor.Tensor {
	if l.UseBias {
		return []*tensor.Tensor{l.Kernel, l.Bias}
	}
	return []*tensor.Tensor{l.Kernel}
}

// Call implements Layer.
func (l *Conv2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (Conv2D) expects a rank-4 NHWC input, got %s", l.Name(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	kData, err := floats(l, l.Kernel)
	if err != nil {
		return nil, err
	}
	var bias []float32
	if l.UseBias {
		if bias, err = floats(l, l.Bias); err != nil {
			return nil, err
		}
	}
	out, outDims := conv2dNHWC(xData, [4]int(x.Dims[:4]), kData, [4]int(l.Kernel.Dims[:4]),
		bias, l.Strides, l.DilationRate, l.Padding, l.Groups)
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims[:]...)}, nil
}

// DepthwiseConv2D convolves each input channel independently.
// Kernel layout: (kernelH, kernelW, inChannels, depthMultiplier).
type DepthwiseConv2D struct {
	LayerBase
	KernelSize   [2]int
	Strides      [2]int
	DilationRate [2]int
	Padding      Padding
	UseBias      bool

	Kernel *tensor.Tensor
	Bias   *tensor.Tensor
}

// ClassName implements Layer.
func (l *DepthwiseConv2D) ClassName() string { return "DepthwiseConv2D" }

// Config implements Layer.
func (l *DepthwiseConv2D) Config() map[string]any {
	return map[string]any{
		"kernel_size":   l.KernelSize,
		"strides":       l.Strides,
		"dilation_rate": l.DilationRate,
		"padding":       string(l.Padding),
		"use_bias":      l.UseBias,
	}
}

// Weights implements Layer.
func (l *DepthwiseConv2D) Weights() []*tensor.Tensor {
	if l.UseBias {
		return []*tensor.Tensor{l.Kernel, l.Bias}
	}
	return []*tensor.Tensor{l.Kernel}
}

// Call implements Layer.
func (l *DepthwiseConv2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (DepthwiseConv2D) expects a rank-4 NHWC input, got %s", l.Name(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	kData, err := floats(l, l.Kernel)
	if err != nil {
		return nil, err
	}
	var bias []float32
	if l.UseBias {
		if bias, err = floats(l, l.Bias); err != nil {
			return nil, err
		}
	}
	out, outDims := depthwiseConv2dNHWC(xData, [4]int(x.Dims[:4]), kData, [4]int(l.Kernel.Dims[:4]),
		bias, l.Strides, l.DilationRate, l.Padding)
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims[:]...)}, nil
}

// Conv2DTranspose is a 2D transposed convolution over NHWC inputs.
// Kernel layout: (kernelH, kernelW, filters, inChannels).
type Conv2DTranspose struct {
	LayerBase
	Filters       int
	KernelSize    [2]int
	Strides       [2]int
	DilationRate  [2]int
	Padding       Padding
	OutputPadding [2]int
	UseBias       bool

	Kernel *tensor.Tensor
	Bias   *tensor.Tensor
}

// ClassName implements Layer.
func (l *Conv2DTranspose) ClassName() string { return "Conv2DTranspose" }

// Config implements Layer.
func (l *Conv2DTranspose) Config() map[string]any {
	return map[string]any{
		"filters":        l.Filters,
		"kernel_size":    l.KernelSize,
		"strides":        l.Strides,
		"dilation_rate":  l.DilationRate,
		"padding":        string(l.Padding),
		"output_padding": l.OutputPadding,
		"use_bias":       l.UseBias,
	}
}

// Weights implements Layer.
func (l *Conv2DTranspose) Weights() []*tensor.Tensor {
	if l.UseBias {
		return []*tensor.Tensor{l.Kernel, l.Bias}
	}
	return []*tensor.Tensor{l.Kernel}
}

// Call implements Layer.
func (l *Conv2DTranspose) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (Conv2DTranspose) expects a rank-4 NHWC input, got %s", l.Name(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	kData, err := floats(l, l.Kernel)
	if err != nil {
		return nil, err
	}
	var bias []float32
	if l.UseBias {
		if bias, err = floats(l, l.Bias); err != nil {
			return nil, err
		}
	}
	out, outDims := conv2dTransposeNHWC(xData, [4]int(x.Dims[:4]), kData, [4]int(l.Kernel.Dims[:4]),
		bias, l.Strides, l.Padding, l.OutputPadding)
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims[:]...)}, nil
}
