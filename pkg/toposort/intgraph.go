// Package toposort provides Kahn's-algorithm topological sorting over a
// compact integer-indexed directed graph. The progress tracker uses it to
// check that a scope's non-advancing reachability edges form a DAG.
package toposort

import "slices"

// IntGraph is a directed graph over dense integer node IDs.
type IntGraph struct {
	// nodes is an adjacency list where nodes[u] lists every v with an edge u -> v.
	nodes [][]int
	// inDegree holds the number of incoming edges per node.
	inDegree []int
}

// NewIntGraph creates an empty IntGraph.
func NewIntGraph() *IntGraph {
	return &IntGraph{}
}

// EnsureCapacity grows the graph to hold at least nodeCapacity nodes.
func (graph *IntGraph) EnsureCapacity(nodeCapacity int) {
	if nodeCapacity > len(graph.nodes) {
		newNodes := make([][]int, nodeCapacity)
		copy(newNodes, graph.nodes)
		graph.nodes = newNodes

		newInDegree := make([]int, nodeCapacity)
		copy(newInDegree, graph.inDegree)
		graph.inDegree = newInDegree
	}
}

// AddNode registers the node ID, growing the graph as needed.
func (graph *IntGraph) AddNode(id int) {
	graph.EnsureCapacity(id + 1)
}

// AddEdge adds a directed edge from src to dst. Duplicate edges are ignored;
// reports whether the edge was added.
func (graph *IntGraph) AddEdge(src, dst int) bool {
	graph.EnsureCapacity(max(src, dst) + 1)

	if slices.Contains(graph.nodes[src], dst) {
		return false
	}

	graph.nodes[src] = append(graph.nodes[src], dst)
	graph.inDegree[dst]++

	return true
}

// Len returns the number of nodes the graph can address.
func (graph *IntGraph) Len() int { return len(graph.nodes) }

// TopoSort returns the node IDs in topological order. The second result is
// false when the graph contains a cycle, in which case the returned prefix
// covers only the acyclic part.
func (graph *IntGraph) TopoSort() ([]int, bool) {
	inDegree := make([]int, len(graph.inDegree))
	copy(inDegree, graph.inDegree)

	queue := make([]int, 0, len(graph.nodes))

	for id := range graph.nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int, 0, len(graph.nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range graph.nodes[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return order, len(order) == len(graph.nodes)
}
