package convert

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRespectsDependencies(t *testing.T) {
	// Declared out of dependency order on purpose.
	model := buildModel(t, &protos.GraphProto{
		Node: []*protos.NodeProto{
			{OpType: "Relu", Name: "second", Input: []string{"t1"}, Output: []string{"t2"}},
			{OpType: "Relu", Name: "first", Input: []string{"x"}, Output: []string{"t1"}},
			{OpType: "Add", Name: "third", Input: []string{"t1", "t2"}, Output: []string{"y"}},
		},
		Input:  []*protos.ValueInfoProto{floatInput("x", 1, 4)},
		Output: []*protos.ValueInfoProto{floatInput("y", 1, 4)},
	})

	order, err := Order(model)
	require.NoError(t, err)
	names := make([]string, len(order))
	for ii, node := range order {
		names[ii] = node.Name
	}
	assert.Equal(t, []string{"first", "second", "third"}, names)
}

func TestOrderDeclarationOrderTies(t *testing.T) {
	// Two independent chains: ready nodes are scheduled in declaration order,
	// so repeated runs give the same result.
	model := buildModel(t, &protos.GraphProto{
		Node: []*protos.NodeProto{
			{OpType: "Relu", Name: "b", Input: []string{"x"}, Output: []string{"tb"}},
			{OpType: "Relu", Name: "a", Input: []string{"x"}, Output: []string{"ta"}},
			{OpType: "Relu", Name: "p", Input: []string{"ta"}, Output: []string{"tp"}},
			{OpType: "Add", Name: "q", Input: []string{"tb", "tp"}, Output: []string{"y"}},
		},
		Input:  []*protos.ValueInfoProto{floatInput("x", 1, 4)},
		Output: []*protos.ValueInfoProto{floatInput("y", 1, 4)},
	})

	order, err := Order(model)
	require.NoError(t, err)
	names := make([]string, len(order))
	for ii, node := range order {
		names[ii] = node.Name
	}
	assert.Equal(t, []string{"b", "a", "p", "q"}, names)
}

func TestOrderCycle(t *testing.T) {
	model := buildModel(t, &protos.GraphProto{
		Node: []*protos.NodeProto{
			{OpType: "Relu", Name: "head", Input: []string{"x"}, Output: []string{"t0"}},
			{OpType: "Add", Name: "u", Input: []string{"t0", "t2"}, Output: []string{"t1"}},
			{OpType: "Relu", Name: "v", Input: []string{"t1"}, Output: []string{"t2"}},
		},
		Input:  []*protos.ValueInfoProto{floatInput("x", 1, 4)},
		Output: []*protos.ValueInfoProto{floatInput("t2", 1, 4)},
	})

	_, err := Order(model)
	require.Error(t, err)
	var cyclic *CyclicGraphError
	require.True(t, errors.As(err, &cyclic), "got %v", err)
	assert.ElementsMatch(t, []string{"u", "v"}, cyclic.NodeNames)
}
