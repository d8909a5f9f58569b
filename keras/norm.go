package keras

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// BatchNormalization normalizes over the channels (last) axis using the
// stored moving statistics; this is inference-mode only.
// Weight order follows Keras: gamma, beta, moving mean, moving variance.
type BatchNormalization struct {
	LayerBase
	Epsilon  float32
	Momentum float32

	Gamma          *tensor.Tensor
	Beta           *tensor.Tensor
	MovingMean     *tensor.Tensor
	MovingVariance *tensor.Tensor
}

// ClassName implements Layer.
func (l *BatchNormalization) ClassName() string { return "BatchNormalization" }

// Config implements Layer.
func (l *BatchNormalization) Config() map[string]any {
	return map[string]any{
		"epsilon":  l.Epsilon,
		"momentum": l.Momentum,
		"axis":     -1,
	}
}

// Weights implements Layer.
func (l *BatchNormalization) Weights() []*tensor.Tensor {
	return []*tensor.Tensor{l.Gamma, l.Beta, l.MovingMean, l.MovingVariance}
}

// Call implements Layer.
func (l *BatchNormalization) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 1 {
		return nil, errors.Errorf("layer %q (BatchNormalization) expects at least rank-1 input, got %s", l.Name(), x)
	}
	c := x.Dims[x.Rank()-1]
	if l.Gamma.Size() != c {
		return nil, errors.Errorf("layer %q (BatchNormalization) has %d-channel parameters but input %s", l.Name(), l.Gamma.Size(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	gamma, err := floats(l, l.Gamma)
	if err != nil {
		return nil, err
	}
	beta, err := floats(l, l.Beta)
	if err != nil {
		return nil, err
	}
	mean, err := floats(l, l.MovingMean)
	if err != nil {
		return nil, err
	}
	variance, err := floats(l, l.MovingVariance)
	if err != nil {
		return nil, err
	}

	// Fold the statistics into a per-channel scale and shift.
	scale := make([]float32, c)
	shift := make([]float32, c)
	for ch := 0; ch < c; ch++ {
		scale[ch] = gamma[ch] / math32.Sqrt(variance[ch]+l.Epsilon)
		shift[ch] = beta[ch] - mean[ch]*scale[ch]
	}
	out := make([]float32, len(xData))
	for ii, v := range xData {
		ch := ii % c
		out[ii] = v*scale[ch] + shift[ch]
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, x.Dims...)}, nil
}
