package keras

import (
	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// Reshape changes the non-batch shape; TargetShape excludes the batch axis
// and may contain one -1 wildcard.
type Reshape struct {
	LayerBase
	TargetShape []int
}

// ClassName implements Layer.
func (l *Reshape) ClassName() string { return "Reshape" }

// Config implements Layer.
func (l *Reshape) Config() map[string]any { return map[string]any{"target_shape": l.TargetShape} }

// Weights implements Layer.
func (l *Reshape) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Reshape) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() < 1 {
		return nil, errors.Errorf("layer %q (Reshape) expects at least rank-1 input, got %s", l.Name(), x)
	}
	dims := make([]int, 0, len(l.TargetShape)+1)
	dims = append(dims, x.Dims[0])
	known := x.Dims[0]
	wildcard := -1
	for ii, d := range l.TargetShape {
		dims = append(dims, d)
		if d == -1 {
			if wildcard >= 0 {
				return nil, errors.Errorf("layer %q (Reshape): more than one -1 in target shape %v", l.Name(), l.TargetShape)
			}
			wildcard = ii + 1
			continue
		}
		known *= d
	}
	if wildcard >= 0 {
		if known == 0 || x.Size()%known != 0 {
			return nil, errors.Errorf("layer %q (Reshape): cannot infer -1 for input %s and target %v", l.Name(), x, l.TargetShape)
		}
		dims[wildcard] = x.Size() / known
	}
	out, err := x.Reshape(dims...)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q (Reshape)", l.Name())
	}
	return []*tensor.Tensor{out}, nil
}

// Permute reorders the non-batch axes. Dims are 1-based indices into the
// non-batch axes, following the Keras convention.
type Permute struct {
	LayerBase
	Dims []int
}

// ClassName implements Layer.
func (l *Permute) ClassName() string { return "Permute" }

// Config implements Layer.
func (l *Permute) Config() map[string]any { return map[string]any{"dims": l.Dims} }

// Weights implements Layer.
func (l *Permute) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Permute) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != len(l.Dims)+1 {
		return nil, errors.Errorf("layer %q (Permute) with dims %v expects rank-%d input, got %s",
			l.Name(), l.Dims, len(l.Dims)+1, x)
	}
	perm := make([]int, 0, x.Rank())
	perm = append(perm, 0)
	for _, d := range l.Dims {
		perm = append(perm, d)
	}
	out, err := x.Transpose(perm...)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q (Permute)", l.Name())
	}
	return []*tensor.Tensor{out}, nil
}

// ZeroPadding2D pads the spatial axes of an NHWC input with a constant.
// Padding is ((top, bottom), (left, right)).
type ZeroPadding2D struct {
	LayerBase
	Padding [2][2]int
	Value   float32
}

// ClassName implements Layer.
func (l *ZeroPadding2D) ClassName() string { return "ZeroPadding2D" }

// Config implements Layer.
func (l *ZeroPadding2D) Config() map[string]any {
	cfg := map[string]any{"padding": l.Padding}
	if l.Value != 0 {
		cfg["value"] = l.Value
	}
	return cfg
}

// Weights implements Layer.
func (l *ZeroPadding2D) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *ZeroPadding2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (ZeroPadding2D) expects a rank-4 NHWC input, got %s", l.Name(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	n, h, w, c := x.Dims[0], x.Dims[1], x.Dims[2], x.Dims[3]
	top, bottom := l.Padding[0][0], l.Padding[0][1]
	left, right := l.Padding[1][0], l.Padding[1][1]
	outH, outW := h+top+bottom, w+left+right

	out := make([]float32, n*outH*outW*c)
	if l.Value != 0 {
		for ii := range out {
			out[ii] = l.Value
		}
	}
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			src := ((b*h+y)*w + 0) * c
			dst := ((b*outH+y+top)*outW + left) * c
			copy(out[dst:dst+w*c], xData[src:src+w*c])
		}
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, n, outH, outW, c)}, nil
}

// UpSampling2D scales the spatial axes of an NHWC input by integer factors.
// Interpolation is "nearest" or "bilinear"; bilinear uses align-corners
// sampling, matching the fixed-scale resize this layer stands in for.
type UpSampling2D struct {
	LayerBase
	Size          [2]int
	Interpolation string
}

// ClassName implements Layer.
func (l *UpSampling2D) ClassName() string { return "UpSampling2D" }

// Config implements Layer.
func (l *UpSampling2D) Config() map[string]any {
	return map[string]any{
		"size":          l.Size,
		"interpolation": l.Interpolation,
	}
}

// Weights implements Layer.
func (l *UpSampling2D) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *UpSampling2D) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if x.Rank() != 4 {
		return nil, errors.Errorf("layer %q (UpSampling2D) expects a rank-4 NHWC input, got %s", l.Name(), x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	n, h, w, c := x.Dims[0], x.Dims[1], x.Dims[2], x.Dims[3]
	outH, outW := h*l.Size[0], w*l.Size[1]
	out := make([]float32, n*outH*outW*c)

	switch l.Interpolation {
	case "", "nearest":
		for b := 0; b < n; b++ {
			for oy := 0; oy < outH; oy++ {
				iy := oy / l.Size[0]
				for ox := 0; ox < outW; ox++ {
					ix := ox / l.Size[1]
					src := ((b*h+iy)*w + ix) * c
					dst := ((b*outH+oy)*outW + ox) * c
					copy(out[dst:dst+c], xData[src:src+c])
				}
			}
		}
	case "bilinear":
		scaleY, scaleX := alignCornersScale(h, outH), alignCornersScale(w, outW)
		for b := 0; b < n; b++ {
			for oy := 0; oy < outH; oy++ {
				fy := float64(oy) * scaleY
				y0 := int(fy)
				y1 := min(y0+1, h-1)
				wy := float32(fy - float64(y0))
				for ox := 0; ox < outW; ox++ {
					fx := float64(ox) * scaleX
					x0 := int(fx)
					x1 := min(x0+1, w-1)
					wx := float32(fx - float64(x0))
					for ch := 0; ch < c; ch++ {
						v00 := xData[((b*h+y0)*w+x0)*c+ch]
						v01 := xData[((b*h+y0)*w+x1)*c+ch]
						v10 := xData[((b*h+y1)*w+x0)*c+ch]
						v11 := xData[((b*h+y1)*w+x1)*c+ch]
						top := v00 + (v01-v00)*wx
						bot := v10 + (v11-v10)*wx
						out[((b*outH+oy)*outW+ox)*c+ch] = top + (bot-top)*wy
					}
				}
			}
		}
	default:
		return nil, errors.Errorf("layer %q (UpSampling2D): unknown interpolation %q", l.Name(), l.Interpolation)
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, n, outH, outW, c)}, nil
}

func alignCornersScale(in, out int) float64 {
	if out <= 1 {
		return 0
	}
	return float64(in-1) / float64(out-1)
}

// Slice extracts a strided sub-range per axis. Axes absent from Starts/Ends
// are passed through whole. Negative indices count from the end of the axis.
type Slice struct {
	LayerBase
	Starts []int // per input axis
	Ends   []int
	Steps  []int
}

// ClassName implements Layer.
func (l *Slice) ClassName() string { return "Slice" }

// Config implements Layer.
func (l *Slice) Config() map[string]any {
	return map[string]any{
		"starts": l.Starts,
		"ends":   l.Ends,
		"steps":  l.Steps,
	}
}

// Weights implements Layer.
func (l *Slice) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Slice) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	rank := x.Rank()
	if len(l.Starts) > rank || len(l.Ends) != len(l.Starts) {
		return nil, errors.Errorf("layer %q (Slice): starts/ends %v/%v do not fit input %s", l.Name(), l.Starts, l.Ends, x)
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}

	starts := make([]int, rank)
	steps := make([]int, rank)
	outDims := make([]int, rank)
	for axis := 0; axis < rank; axis++ {
		dim := x.Dims[axis]
		start, end, step := 0, dim, 1
		if axis < len(l.Starts) {
			start, end = l.Starts[axis], l.Ends[axis]
			if axis < len(l.Steps) && l.Steps[axis] != 0 {
				step = l.Steps[axis]
			}
			start = clampIndex(start, dim)
			end = clampIndex(end, dim)
		}
		if step <= 0 {
			return nil, errors.Errorf("layer %q (Slice): non-positive step on axis %d", l.Name(), axis)
		}
		if end < start {
			end = start
		}
		starts[axis] = start
		steps[axis] = step
		outDims[axis] = (end - start + step - 1) / step
	}

	size := 1
	for _, d := range outDims {
		size *= d
	}
	out := make([]float32, size)
	xStrides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		xStrides[axis] = stride
		stride *= x.Dims[axis]
	}
	for ii := range out {
		rem := ii
		src := 0
		for axis := rank - 1; axis >= 0; axis-- {
			coord := rem % outDims[axis]
			rem /= outDims[axis]
			src += (starts[axis] + coord*steps[axis]) * xStrides[axis]
		}
		out[ii] = xData[src]
	}
	return []*tensor.Tensor{tensor.FromFloat32s(out, outDims...)}, nil
}

func clampIndex(idx, dim int) int {
	if idx < 0 {
		idx += dim
	}
	if idx < 0 {
		return 0
	}
	if idx > dim {
		return dim
	}
	return idx
}

// Split cuts the input along Axis into len(SizeSplits) outputs.
type Split struct {
	LayerBase
	Axis       int
	SizeSplits []int
}

// ClassName implements Layer.
func (l *Split) ClassName() string { return "Split" }

// Config implements Layer.
func (l *Split) Config() map[string]any {
	return map[string]any{"axis": l.Axis, "size_splits": l.SizeSplits}
}

// Weights implements Layer.
func (l *Split) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Split) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	axis := l.Axis
	if axis < 0 {
		axis += x.Rank()
	}
	if axis < 0 || axis >= x.Rank() {
		return nil, errors.Errorf("layer %q (Split): axis %d out of range for input %s", l.Name(), l.Axis, x)
	}
	total := 0
	for _, s := range l.SizeSplits {
		total += s
	}
	if total != x.Dims[axis] {
		return nil, errors.Errorf("layer %q (Split): sizes %v do not sum to axis size %d", l.Name(), l.SizeSplits, x.Dims[axis])
	}
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}

	inner := 1
	for _, d := range x.Dims[axis+1:] {
		inner *= d
	}
	outer := x.Size() / (x.Dims[axis] * inner)
	outs := make([]*tensor.Tensor, len(l.SizeSplits))
	offset := 0
	for si, s := range l.SizeSplits {
		dims := append([]int{}, x.Dims...)
		dims[axis] = s
		data := make([]float32, outer*s*inner)
		for o := 0; o < outer; o++ {
			src := (o*x.Dims[axis] + offset) * inner
			copy(data[o*s*inner:(o+1)*s*inner], xData[src:src+s*inner])
		}
		outs[si] = tensor.FromFloat32s(data, dims...)
		offset += s
	}
	return outs, nil
}

// Cast converts the element dtype. The reference kernels run on float32
// data, so the cast truncates or extends through that representation.
type Cast struct {
	LayerBase
	To tensor.DType
}

// ClassName implements Layer.
func (l *Cast) ClassName() string { return "Cast" }

// Config implements Layer.
func (l *Cast) Config() map[string]any { return map[string]any{"dtype": l.To.String()} }

// Weights implements Layer.
func (l *Cast) Weights() []*tensor.Tensor { return nil }

// Call implements Layer.
func (l *Cast) Call(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(l, inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	xData, err := floats(l, x)
	if err != nil {
		return nil, err
	}
	if l.To.IsInt() {
		out := make([]int64, len(xData))
		for ii, v := range xData {
			out[ii] = int64(v)
		}
		t := tensor.FromInt64s(out, x.Dims...)
		t.DType = l.To
		return []*tensor.Tensor{t}, nil
	}
	out := make([]float32, len(xData))
	copy(out, xData)
	return []*tensor.Tensor{tensor.FromFloat32s(out, x.Dims...)}, nil
}
