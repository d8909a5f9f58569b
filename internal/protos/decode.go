package protos

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// This file decodes the ONNX wire format into the structs of this package.
// Unknown fields are skipped, so models produced by newer exporters still
// parse as long as the fields we rely on are unchanged.

// UnmarshalModel decodes a serialized ONNX ModelProto.
func UnmarshalModel(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			m.IrVersion = v.int64()
		case 2:
			m.ProducerName = v.string()
		case 3:
			m.ProducerVersion = v.string()
		case 4:
			m.Domain = v.string()
		case 5:
			m.ModelVersion = v.int64()
		case 6:
			m.DocString = v.string()
		case 7:
			graph, err := unmarshalGraph(v.bytes)
			if err != nil {
				return err
			}
			m.Graph = graph
		case 8:
			opset, err := unmarshalOperatorSetId(v.bytes)
			if err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
		case 14:
			entry, err := unmarshalStringStringEntry(v.bytes)
			if err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessage(err, "decoding ONNX ModelProto")
	}
	return m, nil
}

func unmarshalGraph(data []byte) (*GraphProto, error) {
	g := &GraphProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			node, err := unmarshalNode(v.bytes)
			if err != nil {
				return err
			}
			g.Node = append(g.Node, node)
		case 2:
			g.Name = v.string()
		case 5:
			tensor, err := unmarshalTensor(v.bytes)
			if err != nil {
				return err
			}
			g.Initializer = append(g.Initializer, tensor)
		case 10:
			g.DocString = v.string()
		case 11, 12, 13:
			vi, err := unmarshalValueInfo(v.bytes)
			if err != nil {
				return err
			}
			switch num {
			case 11:
				g.Input = append(g.Input, vi)
			case 12:
				g.Output = append(g.Output, vi)
			case 13:
				g.ValueInfo = append(g.ValueInfo, vi)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding GraphProto %q", g.Name)
	}
	return g, nil
}

func unmarshalNode(data []byte) (*NodeProto, error) {
	n := &NodeProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			n.Input = append(n.Input, v.string())
		case 2:
			n.Output = append(n.Output, v.string())
		case 3:
			n.Name = v.string()
		case 4:
			n.OpType = v.string()
		case 5:
			attr, err := unmarshalAttribute(v.bytes)
			if err != nil {
				return err
			}
			n.Attribute = append(n.Attribute, attr)
		case 6:
			n.DocString = v.string()
		case 7:
			n.Domain = v.string()
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding NodeProto %q", n.Name)
	}
	return n, nil
}

func unmarshalTensor(data []byte) (*TensorProto, error) {
	t := &TensorProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			t.Dims = appendPackedInt64(t.Dims, typ, v)
		case 2:
			t.DataType = TensorProto_DataType(v.int64())
		case 4:
			t.FloatData = appendPackedFloat32(t.FloatData, typ, v)
		case 5:
			for _, i := range appendPackedInt64(nil, typ, v) {
				t.Int32Data = append(t.Int32Data, int32(i))
			}
		case 6:
			t.StringData = append(t.StringData, v.bytes)
		case 7:
			t.Int64Data = appendPackedInt64(t.Int64Data, typ, v)
		case 8:
			t.Name = v.string()
		case 9:
			t.RawData = v.bytes
		case 10:
			t.DoubleData = appendPackedFloat64(t.DoubleData, typ, v)
		case 11:
			for _, i := range appendPackedInt64(nil, typ, v) {
				t.Uint64Data = append(t.Uint64Data, uint64(i))
			}
		case 12:
			t.DocString = v.string()
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding TensorProto %q", t.Name)
	}
	return t, nil
}

func unmarshalValueInfo(data []byte) (*ValueInfoProto, error) {
	vi := &ValueInfoProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			vi.Name = v.string()
		case 2:
			t, err := unmarshalType(v.bytes)
			if err != nil {
				return err
			}
			vi.Type = t
		case 3:
			vi.DocString = v.string()
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding ValueInfoProto %q", vi.Name)
	}
	return vi, nil
}

func unmarshalType(data []byte) (*TypeProto, error) {
	t := &TypeProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		if num != 1 {
			return nil // Sequence/map/optional types are skipped.
		}
		tt := &TypeProto_Tensor{}
		err := eachField(v.bytes, func(num protowire.Number, typ protowire.Type, v value) error {
			switch num {
			case 1:
				tt.ElemType = TensorProto_DataType(v.int64())
			case 2:
				shape, err := unmarshalTensorShape(v.bytes)
				if err != nil {
					return err
				}
				tt.Shape = shape
			}
			return nil
		})
		if err != nil {
			return err
		}
		t.TensorType = tt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func unmarshalTensorShape(data []byte) (*TensorShapeProto, error) {
	s := &TensorShapeProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		if num != 1 {
			return nil
		}
		dim := &TensorShapeProto_Dimension{}
		err := eachField(v.bytes, func(num protowire.Number, typ protowire.Type, v value) error {
			switch num {
			case 1:
				dim.DimValue = v.int64()
			case 2:
				dim.DimParam = v.string()
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.Dim = append(s.Dim, dim)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func unmarshalAttribute(data []byte) (*AttributeProto, error) {
	a := &AttributeProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			a.Name = v.string()
		case 2:
			a.F = math.Float32frombits(uint32(v.varint))
		case 3:
			a.I = v.int64()
		case 4:
			a.S = v.bytes
		case 5:
			t, err := unmarshalTensor(v.bytes)
			if err != nil {
				return err
			}
			a.T = t
		case 7:
			a.Floats = appendPackedFloat32(a.Floats, typ, v)
		case 8:
			a.Ints = appendPackedInt64(a.Ints, typ, v)
		case 9:
			a.Strings = append(a.Strings, v.bytes)
		case 10:
			t, err := unmarshalTensor(v.bytes)
			if err != nil {
				return err
			}
			a.Tensors = append(a.Tensors, t)
		case 20:
			a.Type = AttributeProto_AttributeType(v.int64())
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding AttributeProto %q", a.Name)
	}
	return a, nil
}

func unmarshalOperatorSetId(data []byte) (*OperatorSetIdProto, error) {
	o := &OperatorSetIdProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			o.Domain = v.string()
		case 2:
			o.Version = v.int64()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func unmarshalStringStringEntry(data []byte) (*StringStringEntryProto, error) {
	e := &StringStringEntryProto{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v value) error {
		switch num {
		case 1:
			e.Key = v.string()
		case 2:
			e.Value = v.string()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// value is one decoded wire value. Varint/fixed values are carried in varint,
// length-delimited values in bytes.
type value struct {
	varint uint64
	bytes  []byte
}

func (v value) int64() int64   { return int64(v.varint) }
func (v value) string() string { return string(v.bytes) }

// eachField iterates over every field of a wire-encoded message, calling fn
// with the field number, wire type and decoded value.
func eachField(data []byte, fn func(num protowire.Number, typ protowire.Type, v value) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "invalid field tag")
		}
		data = data[n:]

		var v value
		switch typ {
		case protowire.VarintType:
			u, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "invalid varint in field %d", num)
			}
			v.varint = u
			data = data[n:]
		case protowire.Fixed32Type:
			u, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "invalid fixed32 in field %d", num)
			}
			v.varint = uint64(u)
			data = data[n:]
		case protowire.Fixed64Type:
			u, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "invalid fixed64 in field %d", num)
			}
			v.varint = u
			data = data[n:]
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "invalid length-delimited field %d", num)
			}
			v.bytes = b
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "invalid field %d of wire type %d", num, typ)
			}
			data = data[n:]
			continue
		}
		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

// appendPackedInt64 appends a repeated int64 field value, accepting both the
// packed encoding and the unpacked per-element encoding.
func appendPackedInt64(dst []int64, typ protowire.Type, v value) []int64 {
	if typ != protowire.BytesType {
		return append(dst, v.int64())
	}
	data := v.bytes
	for len(data) > 0 {
		u, n := protowire.ConsumeVarint(data)
		if n < 0 {
			break
		}
		dst = append(dst, int64(u))
		data = data[n:]
	}
	return dst
}

// appendPackedFloat32 appends a repeated float field value (packed fixed32
// list or a single fixed32 element).
func appendPackedFloat32(dst []float32, typ protowire.Type, v value) []float32 {
	if typ != protowire.BytesType {
		return append(dst, math.Float32frombits(uint32(v.varint)))
	}
	data := v.bytes
	for len(data) >= 4 {
		u, n := protowire.ConsumeFixed32(data)
		if n < 0 {
			break
		}
		dst = append(dst, math.Float32frombits(u))
		data = data[n:]
	}
	return dst
}

// appendPackedFloat64 appends a repeated double field value.
func appendPackedFloat64(dst []float64, typ protowire.Type, v value) []float64 {
	if typ != protowire.BytesType {
		return append(dst, math.Float64frombits(v.varint))
	}
	data := v.bytes
	for len(data) >= 8 {
		u, n := protowire.ConsumeFixed64(data)
		if n < 0 {
			break
		}
		dst = append(dst, math.Float64frombits(u))
		data = data[n:]
	}
	return dst
}
