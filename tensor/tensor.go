// Package tensor implements the dense tensor values the converter moves
// around: initializers parsed from the ONNX model and the (possibly
// permuted) weights handed to the target layers.
//
// Tensors are immutable once built: every transformation returns a new
// value.
package tensor

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/x448/float16"
)

// DType is the element type of a Tensor.
type DType int

const (
	InvalidDType DType = iota
	Float32
	Float64
	Float16
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Bool
)

// String implements fmt.Stringer.
func (dt DType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Bool:
		return "bool"
	default:
		return "invalid"
	}
}

// IsFloat reports whether the dtype is a floating-point type.
func (dt DType) IsFloat() bool {
	return dt == Float32 || dt == Float64 || dt == Float16
}

// IsInt reports whether the dtype is an integer type.
func (dt DType) IsInt() bool {
	switch dt {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// Tensor is a named, shaped, typed dense array.
//
// Storage is normalized to one of three flat slices: floating-point data is
// held as float32 (float64 initializers keep a Float64s side copy), integer
// data as int64, booleans as bool. DType records the original ONNX element
// type.
type Tensor struct {
	Name  string
	DType DType
	Dims  []int

	Float32s []float32
	Float64s []float64
	Int64s   []int64
	Bools    []bool
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Dims) }

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Dims {
		size *= dim
	}
	return size
}

// IsScalar reports whether the tensor has rank 0.
func (t *Tensor) IsScalar() bool { return len(t.Dims) == 0 }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("(%s)%v", t.DType, t.Dims)
}

// FromFloat32s builds a float32 tensor from flat data and dimensions.
func FromFloat32s(data []float32, dims ...int) *Tensor {
	return &Tensor{DType: Float32, Dims: dims, Float32s: data}
}

// FromInt64s builds an int64 tensor from flat data and dimensions.
func FromInt64s(data []int64, dims ...int) *Tensor {
	return &Tensor{DType: Int64, Dims: dims, Int64s: data}
}

// FromBools builds a bool tensor from flat data and dimensions.
func FromBools(data []bool, dims ...int) *Tensor {
	return &Tensor{DType: Bool, Dims: dims, Bools: data}
}

// Floats returns the tensor data as float32, converting integer storage if
// needed. It fails on bool tensors.
func (t *Tensor) Floats() ([]float32, error) {
	switch {
	case t.Float32s != nil:
		return t.Float32s, nil
	case t.Float64s != nil:
		out := make([]float32, len(t.Float64s))
		for ii, v := range t.Float64s {
			out[ii] = float32(v)
		}
		return out, nil
	case t.Int64s != nil:
		out := make([]float32, len(t.Int64s))
		for ii, v := range t.Int64s {
			out[ii] = float32(v)
		}
		return out, nil
	case t.Size() == 0:
		return nil, nil
	}
	return nil, errors.Errorf("tensor %q %s has no numeric data", t.Name, t)
}

// Ints returns the tensor data as ints. It fails if the storage is not
// integer: shape-like arguments must be exact.
func (t *Tensor) Ints() ([]int, error) {
	if t.Int64s == nil && t.Size() > 0 {
		return nil, errors.Errorf("tensor %q %s is not integer typed", t.Name, t)
	}
	out := make([]int, len(t.Int64s))
	for ii, v := range t.Int64s {
		out[ii] = int(v)
	}
	return out, nil
}

// Equal reports whether two tensors have the same shape, dtype and data.
func (t *Tensor) Equal(o *Tensor) bool {
	if t.DType != o.DType || len(t.Dims) != len(o.Dims) {
		return false
	}
	for ii, dim := range t.Dims {
		if o.Dims[ii] != dim {
			return false
		}
	}
	switch {
	case t.Float32s != nil:
		return sliceEqual(t.Float32s, o.Float32s)
	case t.Float64s != nil:
		return sliceEqual(t.Float64s, o.Float64s)
	case t.Int64s != nil:
		return sliceEqual(t.Int64s, o.Int64s)
	case t.Bools != nil:
		return sliceEqual(t.Bools, o.Bools)
	}
	return true
}

func sliceEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for ii, v := range a {
		if b[ii] != v {
			return false
		}
	}
	return true
}

// DTypeFromONNX converts an ONNX element type to the tensor DType.
func DTypeFromONNX(onnxDType protos.TensorProto_DataType) (DType, error) {
	switch onnxDType {
	case protos.TensorProto_FLOAT:
		return Float32, nil
	case protos.TensorProto_FLOAT16:
		return Float16, nil
	case protos.TensorProto_DOUBLE:
		return Float64, nil
	case protos.TensorProto_INT8:
		return Int8, nil
	case protos.TensorProto_INT16:
		return Int16, nil
	case protos.TensorProto_INT32:
		return Int32, nil
	case protos.TensorProto_INT64:
		return Int64, nil
	case protos.TensorProto_UINT8:
		return Uint8, nil
	case protos.TensorProto_UINT16:
		return Uint16, nil
	case protos.TensorProto_UINT32:
		return Uint32, nil
	case protos.TensorProto_UINT64:
		return Uint64, nil
	case protos.TensorProto_BOOL:
		return Bool, nil
	default:
		return InvalidDType, errors.Errorf("unsupported/unknown ONNX data type %v", onnxDType)
	}
}

// FromProto converts an ONNX TensorProto (an initializer or a Constant
// attribute) to a Tensor, decoding either the raw little-endian data or one
// of the typed legacy fields.
func FromProto(proto *protos.TensorProto) (*Tensor, error) {
	if proto == nil {
		return nil, errors.New("ONNX TensorProto is nil")
	}
	dtype, err := DTypeFromONNX(proto.DataType)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing tensor %q", proto.Name)
	}
	t := &Tensor{Name: proto.Name, DType: dtype}
	t.Dims = make([]int, len(proto.Dims))
	for axis, dim := range proto.Dims {
		t.Dims[axis] = int(dim)
	}

	if proto.RawData != nil {
		if err := t.fillFromRaw(proto.RawData); err != nil {
			return nil, errors.WithMessagef(err, "while parsing tensor %q", proto.Name)
		}
		return t, nil
	}

	// Typed legacy fields. ONNX stores small integer types in int32_data.
	switch {
	case proto.FloatData != nil:
		t.Float32s = proto.FloatData
	case proto.DoubleData != nil:
		t.Float64s = proto.DoubleData
	case proto.Int64Data != nil:
		t.Int64s = proto.Int64Data
	case proto.Int32Data != nil:
		if dtype == Bool {
			t.Bools = make([]bool, len(proto.Int32Data))
			for ii, v := range proto.Int32Data {
				t.Bools[ii] = v != 0
			}
		} else if dtype == Float16 {
			t.Float32s = make([]float32, len(proto.Int32Data))
			for ii, v := range proto.Int32Data {
				t.Float32s[ii] = float16.Frombits(uint16(v)).Float32()
			}
		} else {
			t.Int64s = make([]int64, len(proto.Int32Data))
			for ii, v := range proto.Int32Data {
				t.Int64s[ii] = int64(v)
			}
		}
	case proto.Uint64Data != nil:
		t.Int64s = make([]int64, len(proto.Uint64Data))
		for ii, v := range proto.Uint64Data {
			t.Int64s[ii] = int64(v)
		}
	case t.Size() == 0:
		// Empty tensor, nothing to copy.
	default:
		return nil, errors.Errorf("tensor %q %s has no supported format of data in the ONNX model!?", proto.Name, t)
	}
	if got := t.storedLen(); got != t.Size() {
		return nil, errors.Errorf("tensor %q %s has size %d, but ONNX model provided %d values!?",
			proto.Name, t, t.Size(), got)
	}
	return t, nil
}

func (t *Tensor) storedLen() int {
	switch {
	case t.Float32s != nil:
		return len(t.Float32s)
	case t.Float64s != nil:
		return len(t.Float64s)
	case t.Int64s != nil:
		return len(t.Int64s)
	case t.Bools != nil:
		return len(t.Bools)
	}
	return 0
}
