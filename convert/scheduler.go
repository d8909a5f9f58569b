package convert

import (
	"github.com/ray0809/onnx-to-keras/internal/protos"
	"github.com/ray0809/onnx-to-keras/onnx"
)

// Order returns the graph nodes in a dependency-respecting order: every node
// appears after all nodes producing its inputs. Ties among ready nodes are
// broken by declaration order, so the result is deterministic. A true cycle
// returns *CyclicGraphError.
//
// This is Kahn's algorithm over the dependency edges induced by tensor
// names; graph inputs and initializers have no producer and impose no edge.
func Order(model *onnx.Model) ([]*protos.NodeProto, error) {
	nodes := model.Proto.Graph.Node
	index := make(map[*protos.NodeProto]int, len(nodes))
	for ii, node := range nodes {
		index[node] = ii
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for ii, node := range nodes {
		for _, input := range node.Input {
			producer, found := model.Producer(input)
			if !found {
				continue
			}
			pi := index[producer]
			indegree[ii]++
			dependents[pi] = append(dependents[pi], ii)
		}
	}

	ordered := make([]*protos.NodeProto, 0, len(nodes))
	scheduled := make([]bool, len(nodes))
	for len(ordered) < len(nodes) {
		next := -1
		for ii := range nodes {
			if !scheduled[ii] && indegree[ii] == 0 {
				next = ii
				break
			}
		}
		if next < 0 {
			cycle := &CyclicGraphError{}
			for ii, node := range nodes {
				if !scheduled[ii] {
					cycle.NodeNames = append(cycle.NodeNames, node.Name)
				}
			}
			return nil, cycle
		}
		scheduled[next] = true
		ordered = append(ordered, nodes[next])
		for _, di := range dependents[next] {
			indegree[di]--
		}
	}
	return ordered, nil
}
