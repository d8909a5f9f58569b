package onnx

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/ray0809/onnx-to-keras/internal/protos"
)

// Attribute accessors for NodeProto. The Must*/required variants panic
// (throw exceptions) on missing or mistyped attributes; callers are expected
// to run inside an exceptions.TryCatch region.

// NodeToString pretty-prints a node for error messages.
func NodeToString(n *protos.NodeProto) string {
	return fmt.Sprintf("%s(%q) -> %q", n.OpType, n.Input, n.Output)
}

// GetNodeAttr returns the given node attribute. If required is true, it
// panics with a message about the missing attribute.
func GetNodeAttr(node *protos.NodeProto, name string, required bool) *protos.AttributeProto {
	for _, attr := range node.Attribute {
		if attr.Name == name {
			return attr
		}
	}
	if required {
		exceptions.Panicf("ONNX %s is missing required attribute %q", NodeToString(node), name)
	}
	return nil
}

func assertNodeAttrType(node *protos.NodeProto, attr *protos.AttributeProto, attributeType protos.AttributeProto_AttributeType) {
	if attr.Type != attributeType {
		exceptions.Panicf("unsupported ONNX attribute %q of type %q in %s", attr.Name, attr.Type, NodeToString(node))
	}
}

// MustGetIntAttr gets the attribute as an integer.
// It panics if the attribute is not set or is of the wrong type.
func MustGetIntAttr(node *protos.NodeProto, attrName string) int {
	attr := GetNodeAttr(node, attrName, true)
	assertNodeAttrType(node, attr, protos.AttributeProto_INT)
	return int(attr.I)
}

// MustGetIntsAttr gets a list-of-integers attribute for node.
// It panics if the attribute is not present or is of the wrong type.
func MustGetIntsAttr(node *protos.NodeProto, attrName string) []int {
	attr := GetNodeAttr(node, attrName, true)
	if attr.Type == protos.AttributeProto_INT {
		return []int{int(attr.I)}
	}
	assertNodeAttrType(node, attr, protos.AttributeProto_INTS)
	return int64sToInts(attr.Ints)
}

// GetIntAttrOr gets an integer attribute for node if present, or returns the
// given defaultValue. It panics if the attribute is present but mistyped.
func GetIntAttrOr(node *protos.NodeProto, attrName string, defaultValue int) int {
	attr := GetNodeAttr(node, attrName, false)
	if attr == nil {
		return defaultValue
	}
	assertNodeAttrType(node, attr, protos.AttributeProto_INT)
	return int(attr.I)
}

// GetBoolAttrOr gets a boolean attribute (ONNX uses an int value of 0 or 1)
// for node if present, or returns the given defaultValue.
func GetBoolAttrOr(node *protos.NodeProto, attrName string, defaultValue bool) bool {
	defaultInt := 0
	if defaultValue {
		defaultInt = 1
	}
	return GetIntAttrOr(node, attrName, defaultInt) != 0
}

// GetFloatAttrOr gets a float attribute for node if present, or returns the
// given defaultValue. It panics if the attribute is present but mistyped.
func GetFloatAttrOr(node *protos.NodeProto, attrName string, defaultValue float32) float32 {
	attr := GetNodeAttr(node, attrName, false)
	if attr == nil {
		return defaultValue
	}
	assertNodeAttrType(node, attr, protos.AttributeProto_FLOAT)
	return attr.F
}

// GetIntsAttrOr gets an integer-list attribute for node if present, or
// returns the given defaultValues.
func GetIntsAttrOr(node *protos.NodeProto, attrName string, defaultValues []int) []int {
	attr := GetNodeAttr(node, attrName, false)
	if attr == nil {
		return defaultValues
	}
	if attr.Type == protos.AttributeProto_INT {
		return []int{int(attr.I)}
	}
	assertNodeAttrType(node, attr, protos.AttributeProto_INTS)
	return int64sToInts(attr.Ints)
}

// GetFloatsAttrOr gets a float-list attribute for node if present, or
// returns the given defaultValues.
func GetFloatsAttrOr(node *protos.NodeProto, attrName string, defaultValues []float32) []float32 {
	attr := GetNodeAttr(node, attrName, false)
	if attr == nil {
		return defaultValues
	}
	if attr.Type == protos.AttributeProto_FLOAT {
		return []float32{attr.F}
	}
	assertNodeAttrType(node, attr, protos.AttributeProto_FLOATS)
	return attr.Floats
}

// GetStringAttrOr gets a string attribute for node if present, or returns
// the given defaultValue. ONNX strings are byte slices on the wire.
func GetStringAttrOr(node *protos.NodeProto, attrName string, defaultValue string) string {
	attr := GetNodeAttr(node, attrName, false)
	if attr == nil {
		return defaultValue
	}
	assertNodeAttrType(node, attr, protos.AttributeProto_STRING)
	return string(attr.S)
}

// MustGetTensorAttr gets a tensor attribute for node. It panics if the
// attribute is not present or is of the wrong type.
func MustGetTensorAttr(node *protos.NodeProto, attrName string) *protos.TensorProto {
	attr := GetNodeAttr(node, attrName, true)
	assertNodeAttrType(node, attr, protos.AttributeProto_TENSOR)
	return attr.T
}

func int64sToInts(in []int64) []int {
	out := make([]int, len(in))
	for ii, v := range in {
		out[ii] = int(v)
	}
	return out
}
