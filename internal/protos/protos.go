// Package protos holds the subset of the ONNX protocol-buffer messages used
// by the converter, along with a decoder for the protobuf wire format.
//
// The structs are hand-written (field numbers from onnx.proto3) and kept
// close to the protoc-generated naming, so code using them reads the same as
// it would against generated bindings.
package protos

// ModelProto is the top-level ONNX message: versioning metadata plus the
// computation graph.
type ModelProto struct {
	IrVersion       int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	OpsetImport     []*OperatorSetIdProto
	MetadataProps   []*StringStringEntryProto
}

// GraphProto describes the computation graph: nodes, initializers (weights)
// and the declared inputs/outputs.
type GraphProto struct {
	Node        []*NodeProto
	Name        string
	Initializer []*TensorProto
	DocString   string
	Input       []*ValueInfoProto
	Output      []*ValueInfoProto
	ValueInfo   []*ValueInfoProto
}

// NodeProto is one operator application: op type, named input/output tensors
// and attributes.
type NodeProto struct {
	Input     []string
	Output    []string
	Name      string
	OpType    string
	Attribute []*AttributeProto
	DocString string
	Domain    string
}

// TensorProto holds a constant tensor: shape, element type and data, either
// raw little-endian bytes or one of the typed legacy fields.
type TensorProto struct {
	Dims       []int64
	DataType   TensorProto_DataType
	FloatData  []float32
	Int32Data  []int32
	StringData [][]byte
	Int64Data  []int64
	Name       string
	RawData    []byte
	DoubleData []float64
	Uint64Data []uint64
	DocString  string
}

// ValueInfoProto declares the type of a named graph input/output.
type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string
}

// TypeProto wraps a tensor type. Sequence/map/optional types are not used by
// the models this converter targets and are skipped during decoding.
type TypeProto struct {
	TensorType *TypeProto_Tensor
}

// TypeProto_Tensor is the element type and shape of a tensor-typed value.
type TypeProto_Tensor struct {
	ElemType TensorProto_DataType
	Shape    *TensorShapeProto
}

// TensorShapeProto is an ordered list of dimensions.
type TensorShapeProto struct {
	Dim []*TensorShapeProto_Dimension
}

// TensorShapeProto_Dimension is either a concrete size (DimValue > 0) or a
// named symbolic dimension such as "batch_size" (DimParam != "").
type TensorShapeProto_Dimension struct {
	DimValue int64
	DimParam string
}

// AttributeProto is a named, typed operator attribute.
type AttributeProto struct {
	Name    string
	Type    AttributeProto_AttributeType
	F       float32
	I       int64
	S       []byte
	T       *TensorProto
	Floats  []float32
	Ints    []int64
	Strings [][]byte
	Tensors []*TensorProto
}

// OperatorSetIdProto identifies an operator-set (domain, version) the model
// was exported against.
type OperatorSetIdProto struct {
	Domain  string
	Version int64
}

// StringStringEntryProto is a key/value metadata pair.
type StringStringEntryProto struct {
	Key   string
	Value string
}

// TensorProto_DataType enumerates ONNX element types.
type TensorProto_DataType int32

const (
	TensorProto_UNDEFINED  TensorProto_DataType = 0
	TensorProto_FLOAT      TensorProto_DataType = 1
	TensorProto_UINT8      TensorProto_DataType = 2
	TensorProto_INT8       TensorProto_DataType = 3
	TensorProto_UINT16     TensorProto_DataType = 4
	TensorProto_INT16      TensorProto_DataType = 5
	TensorProto_INT32      TensorProto_DataType = 6
	TensorProto_INT64      TensorProto_DataType = 7
	TensorProto_STRING     TensorProto_DataType = 8
	TensorProto_BOOL       TensorProto_DataType = 9
	TensorProto_FLOAT16    TensorProto_DataType = 10
	TensorProto_DOUBLE     TensorProto_DataType = 11
	TensorProto_UINT32     TensorProto_DataType = 12
	TensorProto_UINT64     TensorProto_DataType = 13
	TensorProto_COMPLEX64  TensorProto_DataType = 14
	TensorProto_COMPLEX128 TensorProto_DataType = 15
	TensorProto_BFLOAT16   TensorProto_DataType = 16
)

// String returns the ONNX name of the data type.
func (dt TensorProto_DataType) String() string {
	switch dt {
	case TensorProto_FLOAT:
		return "FLOAT"
	case TensorProto_UINT8:
		return "UINT8"
	case TensorProto_INT8:
		return "INT8"
	case TensorProto_UINT16:
		return "UINT16"
	case TensorProto_INT16:
		return "INT16"
	case TensorProto_INT32:
		return "INT32"
	case TensorProto_INT64:
		return "INT64"
	case TensorProto_STRING:
		return "STRING"
	case TensorProto_BOOL:
		return "BOOL"
	case TensorProto_FLOAT16:
		return "FLOAT16"
	case TensorProto_DOUBLE:
		return "DOUBLE"
	case TensorProto_UINT32:
		return "UINT32"
	case TensorProto_UINT64:
		return "UINT64"
	case TensorProto_COMPLEX64:
		return "COMPLEX64"
	case TensorProto_COMPLEX128:
		return "COMPLEX128"
	case TensorProto_BFLOAT16:
		return "BFLOAT16"
	default:
		return "UNDEFINED"
	}
}

// AttributeProto_AttributeType enumerates attribute value kinds.
type AttributeProto_AttributeType int32

const (
	AttributeProto_UNDEFINED AttributeProto_AttributeType = 0
	AttributeProto_FLOAT     AttributeProto_AttributeType = 1
	AttributeProto_INT       AttributeProto_AttributeType = 2
	AttributeProto_STRING    AttributeProto_AttributeType = 3
	AttributeProto_TENSOR    AttributeProto_AttributeType = 4
	AttributeProto_GRAPH     AttributeProto_AttributeType = 5
	AttributeProto_FLOATS    AttributeProto_AttributeType = 6
	AttributeProto_INTS      AttributeProto_AttributeType = 7
	AttributeProto_STRINGS   AttributeProto_AttributeType = 8
	AttributeProto_TENSORS   AttributeProto_AttributeType = 9
	AttributeProto_GRAPHS    AttributeProto_AttributeType = 10
)

// String returns the ONNX name of the attribute type.
func (at AttributeProto_AttributeType) String() string {
	switch at {
	case AttributeProto_FLOAT:
		return "FLOAT"
	case AttributeProto_INT:
		return "INT"
	case AttributeProto_STRING:
		return "STRING"
	case AttributeProto_TENSOR:
		return "TENSOR"
	case AttributeProto_GRAPH:
		return "GRAPH"
	case AttributeProto_FLOATS:
		return "FLOATS"
	case AttributeProto_INTS:
		return "INTS"
	case AttributeProto_STRINGS:
		return "STRINGS"
	case AttributeProto_TENSORS:
		return "TENSORS"
	case AttributeProto_GRAPHS:
		return "GRAPHS"
	default:
		return "UNDEFINED"
	}
}

// GetOpType returns the node's operator type, tolerating a nil node.
func (n *NodeProto) GetOpType() string {
	if n == nil {
		return ""
	}
	return n.OpType
}
