package keras

// Reference NHWC kernels shared by the layer Call implementations.
// Padding arithmetic follows the TensorFlow conventions: "same" splits the
// total padding with the extra cell on the bottom/right.

// outputSpatial returns the output size and leading pad for one spatial axis.
func outputSpatial(in, kernel, stride, dilation int, padding Padding) (out, padBefore int) {
	effective := (kernel-1)*dilation + 1
	if padding == PaddingSame {
		out = (in + stride - 1) / stride
		padTotal := (out-1)*stride + effective - in
		if padTotal < 0 {
			padTotal = 0
		}
		return out, padTotal / 2
	}
	return (in-effective)/stride + 1, 0
}

func conv2dNHWC(x []float32, xDims [4]int, k []float32, kDims [4]int,
	bias []float32, strides, dilation [2]int, padding Padding, groups int) ([]float32, [4]int) {
	n, h, w, cin := xDims[0], xDims[1], xDims[2], xDims[3]
	kh, kw, cinPerGroup, cout := kDims[0], kDims[1], kDims[2], kDims[3]
	outH, padTop := outputSpatial(h, kh, strides[0], dilation[0], padding)
	outW, padLeft := outputSpatial(w, kw, strides[1], dilation[1], padding)
	coutPerGroup := cout / groups

	out := make([]float32, n*outH*outW*cout)
	for b := 0; b < n; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for oc := 0; oc < cout; oc++ {
					group := oc / coutPerGroup
					var acc float32
					for ky := 0; ky < kh; ky++ {
						iy := oy*strides[0] + ky*dilation[0] - padTop
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*strides[1] + kx*dilation[1] - padLeft
							if ix < 0 || ix >= w {
								continue
							}
							for ic := 0; ic < cinPerGroup; ic++ {
								xv := x[((b*h+iy)*w+ix)*cin+group*cinPerGroup+ic]
								kv := k[((ky*kw+kx)*cinPerGroup+ic)*cout+oc]
								acc += xv * kv
							}
						}
					}
					if bias != nil {
						acc += bias[oc]
					}
					out[((b*outH+oy)*outW+ox)*cout+oc] = acc
				}
			}
		}
	}
	return out, [4]int{n, outH, outW, cout}
}

func depthwiseConv2dNHWC(x []float32, xDims [4]int, k []float32, kDims [4]int,
	bias []float32, strides, dilation [2]int, padding Padding) ([]float32, [4]int) {
	n, h, w, cin := xDims[0], xDims[1], xDims[2], xDims[3]
	kh, kw, mult := kDims[0], kDims[1], kDims[3]
	outH, padTop := outputSpatial(h, kh, strides[0], dilation[0], padding)
	outW, padLeft := outputSpatial(w, kw, strides[1], dilation[1], padding)
	cout := cin * mult

	out := make([]float32, n*outH*outW*cout)
	for b := 0; b < n; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for c := 0; c < cin; c++ {
					for m := 0; m < mult; m++ {
						var acc float32
						for ky := 0; ky < kh; ky++ {
							iy := oy*strides[0] + ky*dilation[0] - padTop
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*strides[1] + kx*dilation[1] - padLeft
								if ix < 0 || ix >= w {
									continue
								}
								xv := x[((b*h+iy)*w+ix)*cin+c]
								kv := k[((ky*kw+kx)*cin+c)*mult+m]
								acc += xv * kv
							}
						}
						oc := c*mult + m
						if bias != nil {
							acc += bias[oc]
						}
						out[((b*outH+oy)*outW+ox)*cout+oc] = acc
					}
				}
			}
		}
	}
	return out, [4]int{n, outH, outW, cout}
}

func conv2dTransposeNHWC(x []float32, xDims [4]int, k []float32, kDims [4]int,
	bias []float32, strides [2]int, padding Padding, outputPadding [2]int) ([]float32, [4]int) {
	n, h, w, cin := xDims[0], xDims[1], xDims[2], xDims[3]
	kh, kw, cout := kDims[0], kDims[1], kDims[2]

	var outH, outW, padTop, padLeft int
	if padding == PaddingSame {
		outH = h * strides[0]
		outW = w * strides[1]
		padTop = ((h-1)*strides[0] + kh - outH) / 2
		padLeft = ((w-1)*strides[1] + kw - outW) / 2
	} else {
		outH = (h-1)*strides[0] + kh + outputPadding[0]
		outW = (w-1)*strides[1] + kw + outputPadding[1]
	}

	out := make([]float32, n*outH*outW*cout)
	if bias != nil {
		for ii := range out {
			out[ii] = bias[ii%cout]
		}
	}
	// Scatter: every input cell contributes a kernel-sized patch.
	for b := 0; b < n; b++ {
		for iy := 0; iy < h; iy++ {
			for ix := 0; ix < w; ix++ {
				for ky := 0; ky < kh; ky++ {
					oy := iy*strides[0] + ky - padTop
					if oy < 0 || oy >= outH {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						ox := ix*strides[1] + kx - padLeft
						if ox < 0 || ox >= outW {
							continue
						}
						for oc := 0; oc < cout; oc++ {
							var acc float32
							for ic := 0; ic < cin; ic++ {
								xv := x[((b*h+iy)*w+ix)*cin+ic]
								kv := k[((ky*kw+kx)*cout+oc)*cin+ic]
								acc += xv * kv
							}
							out[((b*outH+oy)*outW+ox)*cout+oc] += acc
						}
					}
				}
			}
		}
	}
	return out, [4]int{n, outH, outW, cout}
}

// poolRegion applies fn over every pooling window. fn receives the values of
// one window (without padded cells).
func pool2dNHWC(x []float32, xDims [4]int, kernel, strides [2]int, padding Padding,
	fn func(window []float32) float32) ([]float32, [4]int) {
	n, h, w, c := xDims[0], xDims[1], xDims[2], xDims[3]
	outH, padTop := outputSpatial(h, kernel[0], strides[0], 1, padding)
	outW, padLeft := outputSpatial(w, kernel[1], strides[1], 1, padding)

	out := make([]float32, n*outH*outW*c)
	window := make([]float32, 0, kernel[0]*kernel[1])
	for b := 0; b < n; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for ch := 0; ch < c; ch++ {
					window = window[:0]
					for ky := 0; ky < kernel[0]; ky++ {
						iy := oy*strides[0] + ky - padTop
						if iy < 0 || iy >= h {
							continue
						}
						for kx := 0; kx < kernel[1]; kx++ {
							ix := ox*strides[1] + kx - padLeft
							if ix < 0 || ix >= w {
								continue
							}
							window = append(window, x[((b*h+iy)*w+ix)*c+ch])
						}
					}
					out[((b*outH+oy)*outW+ox)*c+ch] = fn(window)
				}
			}
		}
	}
	return out, [4]int{n, outH, outW, c}
}

// broadcastShape computes the numpy-style broadcast of two shapes,
// right-aligned, or returns ok=false when they are incompatible.
func broadcastShape(a, b []int) (out []int, ok bool) {
	rank := max(len(a), len(b))
	out = make([]int, rank)
	for ii := 0; ii < rank; ii++ {
		da, db := 1, 1
		if ii >= rank-len(a) {
			da = a[ii-(rank-len(a))]
		}
		if ii >= rank-len(b) {
			db = b[ii-(rank-len(b))]
		}
		switch {
		case da == db:
			out[ii] = da
		case da == 1:
			out[ii] = db
		case db == 1:
			out[ii] = da
		default:
			return nil, false
		}
	}
	return out, true
}

// broadcastIndex maps a flat index of the broadcast output shape back to a
// flat index of an operand with the given dims.
func broadcastIndex(outIdx int, outDims, dims []int) int {
	idx := 0
	stride := 1
	offset := len(outDims) - len(dims)
	// Walk output axes from the last to the first.
	for axis := len(outDims) - 1; axis >= 0; axis-- {
		coord := outIdx % outDims[axis]
		outIdx /= outDims[axis]
		if axis < offset {
			continue
		}
		dim := dims[axis-offset]
		if dim != 1 {
			idx += coord * stride
		}
		stride *= dim
	}
	return idx
}
