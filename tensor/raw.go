package tensor

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// fillFromRaw decodes the raw_data field of a TensorProto. ONNX raw data is
// always little-endian, in the element order of the declared dims.
func (t *Tensor) fillFromRaw(raw []byte) error {
	size := t.Size()
	elemSize, err := rawElementSize(t.DType)
	if err != nil {
		return err
	}
	if len(raw) != size*elemSize {
		return errors.Errorf("%s tensor of %d elements needs %d bytes of raw data, got %d",
			t.DType, size, size*elemSize, len(raw))
	}

	switch t.DType {
	case Float32:
		t.Float32s = make([]float32, size)
		for ii := range t.Float32s {
			t.Float32s[ii] = math.Float32frombits(binary.LittleEndian.Uint32(raw[ii*4:]))
		}
	case Float64:
		t.Float64s = make([]float64, size)
		for ii := range t.Float64s {
			t.Float64s[ii] = math.Float64frombits(binary.LittleEndian.Uint64(raw[ii*8:]))
		}
	case Float16:
		t.Float32s = make([]float32, size)
		for ii := range t.Float32s {
			t.Float32s[ii] = float16.Frombits(binary.LittleEndian.Uint16(raw[ii*2:])).Float32()
		}
	case Int64:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(binary.LittleEndian.Uint64(raw[ii*8:]))
		}
	case Uint64:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(binary.LittleEndian.Uint64(raw[ii*8:]))
		}
	case Int32:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(int32(binary.LittleEndian.Uint32(raw[ii*4:])))
		}
	case Uint32:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(binary.LittleEndian.Uint32(raw[ii*4:]))
		}
	case Int16:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(int16(binary.LittleEndian.Uint16(raw[ii*2:])))
		}
	case Uint16:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(binary.LittleEndian.Uint16(raw[ii*2:]))
		}
	case Int8:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(int8(raw[ii]))
		}
	case Uint8:
		t.Int64s = make([]int64, size)
		for ii := range t.Int64s {
			t.Int64s[ii] = int64(raw[ii])
		}
	case Bool:
		t.Bools = make([]bool, size)
		for ii := range t.Bools {
			t.Bools[ii] = raw[ii] != 0
		}
	default:
		return errors.Errorf("unsupported dtype %s for raw data", t.DType)
	}
	return nil
}

func rawElementSize(dt DType) (int, error) {
	switch dt {
	case Float64, Int64, Uint64:
		return 8, nil
	case Float32, Int32, Uint32:
		return 4, nil
	case Float16, Int16, Uint16:
		return 2, nil
	case Int8, Uint8, Bool:
		return 1, nil
	default:
		return 0, errors.Errorf("unsupported dtype %s for raw data", dt)
	}
}
