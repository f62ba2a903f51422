package progress

// OffloadTopology records which children of a subgraph are wrappers for
// device-fused operator chains, and which are the ghosts standing in for the
// fused operators in the progress plane. It is shared by reference between
// the subgraph and every per-operator record; it is mutated only during
// construction.
type OffloadTopology struct {
	// WrapperGhosts maps a wrapper node to its ordered ghost chain.
	WrapperGhosts map[int][]int
	// GhostWrapper maps a ghost node back to its wrapper.
	GhostWrapper map[int]int
	// WrapperGhostEdges maps a wrapper node to the progress-plane edges
	// among its ghosts, including the boundary edges grafted in when the
	// scope's edges are rewritten.
	WrapperGhostEdges map[int][][2]int
}

// NewOffloadTopology returns an empty topology.
func NewOffloadTopology() *OffloadTopology {
	return &OffloadTopology{
		WrapperGhosts:     make(map[int][]int),
		GhostWrapper:      make(map[int]int),
		WrapperGhostEdges: make(map[int][][2]int),
	}
}

// Register records a wrapper with its ghost chain and intra-chain edges.
func (ot *OffloadTopology) Register(wrapper int, ghosts []int, ghostEdges [][2]int) {
	for _, ghost := range ghosts {
		ot.GhostWrapper[ghost] = wrapper
	}

	ot.WrapperGhosts[wrapper] = ghosts
	ot.WrapperGhostEdges[wrapper] = ghostEdges
}

// IsWrapper reports whether node is a registered wrapper.
func (ot *OffloadTopology) IsWrapper(node int) bool {
	_, ok := ot.WrapperGhosts[node]

	return ok
}

// IsGhost reports whether node is a registered ghost.
func (ot *OffloadTopology) IsGhost(node int) bool {
	_, ok := ot.GhostWrapper[node]

	return ok
}

// Wrapper returns the wrapper of a ghost node.
func (ot *OffloadTopology) Wrapper(ghost int) (int, bool) {
	wrapper, ok := ot.GhostWrapper[ghost]

	return wrapper, ok
}
