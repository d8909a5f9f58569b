package onnx

import (
	"fmt"
	"slices"
	"strings"
)

// String implements fmt.Stringer: a short human-readable header with the
// model's provenance, versions and graph boundary, one fact per line.
func (m *Model) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ONNX model %q\n", m.Proto.Graph.Name)
	if doc := m.Proto.DocString; doc != "" {
		fmt.Fprintf(&b, "  %s\n", doc)
	}
	if m.Proto.ProducerName != "" {
		fmt.Fprintf(&b, "  producer: %s %s\n", m.Proto.ProducerName, m.Proto.ProducerVersion)
	}
	if m.Proto.ModelVersion != 0 {
		fmt.Fprintf(&b, "  model version: %d\n", m.Proto.ModelVersion)
	}
	fmt.Fprintf(&b, "  ir version: %d\n", m.Proto.IrVersion)
	fmt.Fprintf(&b, "  opsets: %s\n", strings.Join(m.opsetLabels(), ", "))
	counts := m.OpTypeCounts()
	opTypes := make([]string, 0, len(counts))
	for opType := range counts {
		opTypes = append(opTypes, opType)
	}
	slices.Sort(opTypes)
	fmt.Fprintf(&b, "  nodes: %d (%s)\n", len(m.Proto.Graph.Node),
		strings.Join(opTypes, ", "))
	fmt.Fprintf(&b, "  inputs: %q\n", m.InputNames)
	fmt.Fprintf(&b, "  outputs: %q\n", m.OutputNames)
	for _, prop := range m.Proto.MetadataProps {
		fmt.Fprintf(&b, "  metadata: %s=%s\n", prop.Key, prop.Value)
	}
	return b.String()
}

func (m *Model) opsetLabels() []string {
	labels := make([]string, 0, len(m.Proto.OpsetImport))
	for _, opset := range m.Proto.OpsetImport {
		label := fmt.Sprintf("v%d", opset.Version)
		if opset.Domain != "" {
			label = fmt.Sprintf("%s/v%d", opset.Domain, opset.Version)
		}
		labels = append(labels, label)
	}
	return labels
}

// OpTypeCounts returns how many times each operator type appears in the
// graph, for inspection tooling.
func (m *Model) OpTypeCounts() map[string]int {
	counts := make(map[string]int)
	for _, n := range m.Proto.Graph.Node {
		counts[n.GetOpType()]++
	}
	return counts
}
