// Package onnx parses ONNX models into the graph representation consumed by
// the converter.
//
//   - Parse: converts a serialized ONNX ModelProto to a Model.
//   - ReadFile: reads a file and calls Parse. It returns a Model.
//   - Model: the parsed graph IR: nodes, initializer tensors and the
//     declared graph inputs/outputs, structurally validated. It is read-only
//     after parsing.
package onnx

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/tensor"
)

// IR versions this parser recognizes. Version 3 is the first with opset
// imports; 11 is current at the time of writing.
const (
	minIRVersion = 3
	maxIRVersion = 11
)

// Model represents a parsed and validated ONNX file.
type Model struct {
	Proto *protos.ModelProto

	// InputNames/OutputNames are the declared graph inputs/outputs.
	// Initializers that are redundantly listed as graph inputs (a common
	// exporter habit) are excluded from InputNames.
	InputNames  []string
	OutputNames []string

	initializers map[string]*tensor.Tensor
	producers    map[string]*protos.NodeProto
	inputInfo    map[string]*protos.ValueInfoProto
}

// MalformedGraphError reports a structural problem in the parsed model: a
// dangling tensor reference, a tensor name with two producers, or an
// unrecognized format version.
type MalformedGraphError struct {
	Reason string
}

// Error implements the error interface.
func (e *MalformedGraphError) Error() string {
	return fmt.Sprintf("malformed ONNX graph: %s", e.Reason)
}

func malformedf(format string, args ...any) error {
	return &MalformedGraphError{Reason: fmt.Sprintf(format, args...)}
}

// Parse parses a serialized ONNX model and validates its structure.
func Parse(contents []byte) (*Model, error) {
	proto, err := protos.UnmarshalModel(contents)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to parse ONNX model proto")
	}
	return Build(proto)
}

// ReadFile parses an ONNX model file.
func ReadFile(filePath string) (*Model, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ONNX model file in %s", filePath)
	}
	return Parse(contents)
}

// Build validates a decoded ModelProto and wraps it as a Model. Structural
// violations are reported as *MalformedGraphError.
func Build(proto *protos.ModelProto) (*Model, error) {
	if proto.Graph == nil {
		return nil, malformedf("model has no graph")
	}
	if proto.IrVersion < minIRVersion || proto.IrVersion > maxIRVersion {
		return nil, malformedf("unrecognized IR version %d (supported: %d..%d)",
			proto.IrVersion, minIRVersion, maxIRVersion)
	}

	m := &Model{
		Proto:        proto,
		initializers: make(map[string]*tensor.Tensor, len(proto.Graph.Initializer)),
		producers:    make(map[string]*protos.NodeProto),
		inputInfo:    make(map[string]*protos.ValueInfoProto, len(proto.Graph.Input)),
	}

	for _, tensorProto := range proto.Graph.Initializer {
		if tensorProto.Name == "" {
			return nil, malformedf("initializer without a name")
		}
		if _, found := m.initializers[tensorProto.Name]; found {
			return nil, malformedf("initializer %q defined twice", tensorProto.Name)
		}
		t, err := tensor.FromProto(tensorProto)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid initializer %q", tensorProto.Name)
		}
		m.initializers[tensorProto.Name] = t
	}

	for _, input := range proto.Graph.Input {
		m.inputInfo[input.Name] = input
		if _, isInit := m.initializers[input.Name]; isInit {
			continue
		}
		m.InputNames = append(m.InputNames, input.Name)
	}

	// Every tensor name has exactly one producer.
	for _, node := range proto.Graph.Node {
		for _, output := range node.Output {
			if output == "" {
				continue // Optional outputs may be left unnamed.
			}
			if prev, found := m.producers[output]; found {
				return nil, malformedf("tensor %q produced by both node %q and node %q",
					output, prev.Name, node.Name)
			}
			if _, found := m.initializers[output]; found {
				return nil, malformedf("tensor %q is both an initializer and an output of node %q",
					output, node.Name)
			}
			m.producers[output] = node
		}
	}

	// Every input reference resolves.
	for _, node := range proto.Graph.Node {
		for _, input := range node.Input {
			if input == "" {
				continue // Optional input left out.
			}
			if !m.resolves(input) {
				return nil, malformedf("node %q (%s) references undefined input %q",
					node.Name, node.OpType, input)
			}
		}
	}
	for _, output := range proto.Graph.Output {
		if !m.resolves(output.Name) {
			return nil, malformedf("graph output %q is not produced by any node", output.Name)
		}
		m.OutputNames = append(m.OutputNames, output.Name)
	}
	return m, nil
}

func (m *Model) resolves(name string) bool {
	if _, found := m.initializers[name]; found {
		return true
	}
	if _, found := m.inputInfo[name]; found {
		return true
	}
	_, found := m.producers[name]
	return found
}

// Initializer returns the named constant tensor embedded in the model, or
// false if the name is not an initializer.
func (m *Model) Initializer(name string) (*tensor.Tensor, bool) {
	t, found := m.initializers[name]
	return t, found
}

// Producer returns the node producing the named tensor, if any.
func (m *Model) Producer(name string) (*protos.NodeProto, bool) {
	n, found := m.producers[name]
	return n, found
}

// InputValueInfo returns the declared type/shape information for a graph
// input.
func (m *Model) InputValueInfo(name string) (*protos.ValueInfoProto, bool) {
	vi, found := m.inputInfo[name]
	return vi, found
}

// InputShape returns the declared shape of a graph input, with unknown or
// symbolic ("batch") dimensions reported as -1, along with its dtype.
func (m *Model) InputShape(name string) (dims []int, dtype tensor.DType, err error) {
	vi, found := m.inputInfo[name]
	if !found {
		return nil, tensor.InvalidDType, errors.Errorf("unknown graph input %q", name)
	}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return nil, tensor.InvalidDType, errors.Errorf("graph input %q has no tensor type declaration", name)
	}
	tt := vi.Type.TensorType
	dtype, err = tensor.DTypeFromONNX(tt.ElemType)
	if err != nil {
		return nil, tensor.InvalidDType, errors.WithMessagef(err, "graph input %q", name)
	}
	if tt.Shape == nil {
		return nil, dtype, nil
	}
	dims = make([]int, len(tt.Shape.Dim))
	for axis, dim := range tt.Shape.Dim {
		if dim.DimValue > 0 && dim.DimParam == "" {
			dims[axis] = int(dim.DimValue)
		} else {
			dims[axis] = -1
		}
	}
	return dims, dtype, nil
}
