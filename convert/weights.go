package convert

import (
	"fmt"

	"github.com/ray0809/onnx-to-keras/tensor"
)

// WeightRole declares how a weight tensor is consumed by its target layer,
// which determines the axis permutation it needs.
type WeightRole int

const (
	// RoleNone passes the tensor through unchanged.
	RoleNone WeightRole = iota
	// KernelConv: ONNX (outC, inC, kH, kW) to target (kH, kW, inC, outC).
	KernelConv
	// KernelDepthwise: ONNX (outC, 1, kH, kW) to target (kH, kW, outC, 1),
	// where the third axis carries the input channels and the last the depth
	// multiplier.
	KernelDepthwise
	// KernelConvTranspose: ONNX (inC, outC, kH, kW) to target
	// (kH, kW, outC, inC).
	KernelConvTranspose
	// DenseMatrix: transpose (units, inFeatures) to (inFeatures, units).
	DenseMatrix
	// Bias passes through unchanged but checks for rank 1.
	Bias
	// BatchNormParam passes through unchanged but checks for rank 1.
	BatchNormParam
)

// String implements fmt.Stringer.
func (r WeightRole) String() string {
	switch r {
	case KernelConv:
		return "conv-kernel"
	case KernelDepthwise:
		return "depthwise-conv-kernel"
	case KernelConvTranspose:
		return "conv-transpose-kernel"
	case DenseMatrix:
		return "dense-matrix"
	case Bias:
		return "bias"
	case BatchNormParam:
		return "batchnorm-param"
	default:
		return "none"
	}
}

// perm returns the axis permutation for the role, or nil for pass-through,
// plus the rank the role requires (0 means any).
func (r WeightRole) perm() (perm []int, wantRank int) {
	switch r {
	case KernelConv, KernelConvTranspose:
		return []int{2, 3, 1, 0}, 4
	case KernelDepthwise:
		return []int{2, 3, 0, 1}, 4
	case DenseMatrix:
		return []int{1, 0}, 2
	case Bias, BatchNormParam:
		return nil, 1
	default:
		return nil, 0
	}
}

// PermuteWeight returns the tensor permuted into the axis order the role's
// target layer expects. It is pure and deterministic; the input is never
// mutated. A rank mismatch returns *WeightShapeError.
func PermuteWeight(t *tensor.Tensor, role WeightRole) (*tensor.Tensor, error) {
	perm, wantRank := role.perm()
	if wantRank != 0 && t.Rank() != wantRank {
		return nil, &WeightShapeError{
			TensorName: t.Name,
			Role:       role,
			Reason:     fmt.Sprintf("requires rank %d, got %s", wantRank, t),
		}
	}
	if perm == nil {
		return t, nil
	}
	out, err := t.Transpose(perm...)
	if err != nil {
		return nil, &WeightShapeError{TensorName: t.Name, Role: role, Reason: err.Error()}
	}
	return out, nil
}

// mustPermuteWeight is the panicking form used inside translators.
func mustPermuteWeight(t *tensor.Tensor, role WeightRole) *tensor.Tensor {
	out, err := PermuteWeight(t, role)
	if err != nil {
		panic(err)
	}
	return out
}
