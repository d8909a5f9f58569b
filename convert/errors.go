package convert

import "fmt"

// All conversion failures are fatal and typed. Translators panic with these
// values inside the Convert boundary; Convert recovers them into its error
// return. Each carries the offending node's name and operator type where one
// applies, so a user can locate the node and add support for the missing
// case.

// ShapeInferenceError reports that a needed shape or layout could not be
// determined or is inconsistent (rank mismatch, incompatible broadcast).
type ShapeInferenceError struct {
	NodeName string
	OpType   string
	Reason   string
}

// Error implements the error interface.
func (e *ShapeInferenceError) Error() string {
	return fmt.Sprintf("shape inference failed at node %q (%s): %s", e.NodeName, e.OpType, e.Reason)
}

// UnsupportedOperatorError reports an operator with no registered
// translation, or a registered operator used in a form the translation does
// not cover.
type UnsupportedOperatorError struct {
	NodeName string
	OpType   string
	Reason   string
}

// Error implements the error interface.
func (e *UnsupportedOperatorError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported operator %s at node %q", e.OpType, e.NodeName)
	}
	return fmt.Sprintf("unsupported operator %s at node %q: %s", e.OpType, e.NodeName, e.Reason)
}

// WeightShapeError reports a weight tensor whose rank or shape does not
// match its declared role.
type WeightShapeError struct {
	TensorName string
	Role       WeightRole
	Reason     string
}

// Error implements the error interface.
func (e *WeightShapeError) Error() string {
	return fmt.Sprintf("weight %q does not fit role %s: %s", e.TensorName, e.Role, e.Reason)
}

// DynamicShapeUnsupportedError reports a value that must be statically known
// (a reshape target, pad amounts, resize scales) but depends on runtime
// data.
type DynamicShapeUnsupportedError struct {
	NodeName   string
	OpType     string
	TensorName string
}

// Error implements the error interface.
func (e *DynamicShapeUnsupportedError) Error() string {
	return fmt.Sprintf("node %q (%s) requires statically known value for tensor %q, which is only available at runtime",
		e.NodeName, e.OpType, e.TensorName)
}

// CyclicGraphError reports a dependency cycle among the graph nodes.
type CyclicGraphError struct {
	NodeNames []string
}

// Error implements the error interface.
func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("dependency cycle among nodes %v", e.NodeNames)
}
