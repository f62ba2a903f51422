package progress

import (
	"container/heap"
	"fmt"

	"github.com/Sumatoshi-tech/tidalflow/pkg/toposort"
)

// GraphBuilder accumulates the description of a scope's progress graph: node
// shapes, internal path summaries, and edges. Building it yields the Tracker
// that incrementally computes, for every port, the frontier of timestamps
// that pending pointstamps elsewhere in the scope could still reach.
type GraphBuilder[T Timestamp[T], S PathSummary[S, T]] struct {
	inputs    []int
	outputs   []int
	summaries [][][]*Antichain[S]
	edges     [][][]Target
}

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder[T Timestamp[T], S PathSummary[S, T]]() *GraphBuilder[T, S] {
	return &GraphBuilder[T, S]{}
}

// AddNode registers node id with the given port counts and internal path
// summaries, shaped [input][output]. Node ids must end up dense before Build.
func (b *GraphBuilder[T, S]) AddNode(id, inputs, outputs int, summary [][]*Antichain[S]) {
	if len(summary) != inputs {
		panic(fmt.Sprintf("reachability: node %d summary has %d rows, want %d", id, len(summary), inputs))
	}

	for id >= len(b.inputs) {
		b.inputs = append(b.inputs, 0)
		b.outputs = append(b.outputs, 0)
		b.summaries = append(b.summaries, nil)
		b.edges = append(b.edges, nil)
	}

	b.inputs[id] = inputs
	b.outputs[id] = outputs
	b.summaries[id] = summary
	b.edges[id] = make([][]Target, outputs)
}

// AddEdge registers an edge from an operator output to an operator input.
// Edges carry the identity path summary.
func (b *GraphBuilder[T, S]) AddEdge(source Source, target Target) {
	if source.Node >= len(b.edges) || source.Port >= len(b.edges[source.Node]) {
		panic(fmt.Sprintf("reachability: edge from unregistered port (%d, %d)", source.Node, source.Port))
	}

	b.edges[source.Node][source.Port] = append(b.edges[source.Node][source.Port], target)
}

// Build validates the graph, computes the scope-level summary from each
// scope input to each scope output, and returns the tracker.
//
// The scope's progress-plane graph restricted to non-advancing paths must be
// acyclic; a cycle that fails to advance timestamps would deadlock the
// frontier computation, so Build panics on one.
func (b *GraphBuilder[T, S]) Build() (*Tracker[T, S], [][]*Antichain[S]) {
	b.checkAcyclic()

	tracker := &Tracker[T, S]{
		summaries:     b.summaries,
		edges:         b.edges,
		pushedChanges: NewChangeBatch[Pointstamp[T]](),
	}

	tracker.nodes = make([]*PerOperator[T], len(b.inputs))
	for id := range b.inputs {
		tracker.nodes[id] = newPerOperator[T](b.inputs[id], b.outputs[id])
	}

	// Child zero's inputs are the scope outputs.
	tracker.outputChanges = make([]*ChangeBatch[T], b.inputs[ParentNode])
	for i := range tracker.outputChanges {
		tracker.outputChanges[i] = NewChangeBatch[T]()
	}

	return tracker, b.scopeSummary()
}

// checkAcyclic verifies that edges plus non-advancing internal summaries
// form a DAG.
func (b *GraphBuilder[T, S]) checkAcyclic() {
	ids := make(map[Location]int)
	graph := toposort.NewIntGraph()

	intern := func(loc Location) int {
		id, ok := ids[loc]
		if !ok {
			id = len(ids)
			ids[loc] = id
			graph.AddNode(id)
		}

		return id
	}

	var zeroT T

	for node := range b.summaries {
		for input, row := range b.summaries[node] {
			for output, summaries := range row {
				for _, summary := range summaries.Elements() {
					if advanced, ok := summary.Results(zeroT); ok && advanced == zeroT {
						graph.AddEdge(
							intern(NewTargetLocation(node, input)),
							intern(NewSourceLocation(node, output)),
						)
					}
				}
			}
		}

		for port, targets := range b.edges[node] {
			for _, target := range targets {
				graph.AddEdge(
					intern(NewSourceLocation(node, port)),
					intern(target.Location()),
				)
			}
		}
	}

	if _, ok := graph.TopoSort(); !ok {
		panic("reachability: progress graph contains a non-advancing cycle")
	}
}

// scopeSummary computes the path summaries from every scope input to every
// scope output by a least-fixpoint over the graph.
func (b *GraphBuilder[T, S]) scopeSummary() [][]*Antichain[S] {
	scopeInputs := b.outputs[ParentNode]
	scopeOutputs := b.inputs[ParentNode]

	summary := make([][]*Antichain[S], scopeInputs)

	for input := range summary {
		summary[input] = make([]*Antichain[S], scopeOutputs)
		for output := range summary[input] {
			summary[input][output] = NewAntichain[S]()
		}

		b.summarizeFrom(Source{Node: ParentNode, Port: input}, summary[input])
	}

	return summary
}

type pathEntry[S any] struct {
	loc     Location
	summary S
}

// summarizeFrom accumulates minimal path summaries from start into out,
// indexed by scope output port.
func (b *GraphBuilder[T, S]) summarizeFrom(start Source, out []*Antichain[S]) {
	reached := make(map[Location]*Antichain[S])

	var identity S

	worklist := []pathEntry[S]{{loc: start.Location(), summary: identity}}

	for len(worklist) > 0 {
		entry := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		known, ok := reached[entry.loc]
		if !ok {
			known = NewAntichain[S]()
			reached[entry.loc] = known
		}

		if !known.Insert(entry.summary) {
			continue
		}

		switch entry.loc.Port.Kind {
		case SourceKind:
			for _, target := range b.edges[entry.loc.Node][entry.loc.Port.Index] {
				worklist = append(worklist, pathEntry[S]{loc: target.Location(), summary: entry.summary})
			}
		case TargetKind:
			if entry.loc.Node == ParentNode {
				out[entry.loc.Port.Index].Insert(entry.summary)

				continue
			}

			for output, summaries := range b.summaries[entry.loc.Node][entry.loc.Port.Index] {
				for _, internal := range summaries.Elements() {
					if composed, ok := entry.summary.Followed(internal); ok {
						worklist = append(worklist, pathEntry[S]{
							loc:     NewSourceLocation(entry.loc.Node, output),
							summary: composed,
						})
					}
				}
			}
		}
	}
}

// portState tracks one port: the pointstamps recorded at it and the frontier
// implications propagated to it.
type portState[T Timestamp[T]] struct {
	pointstamps  *MutableAntichain[T]
	implications *MutableAntichain[T]
}

func newPortState[T Timestamp[T]]() portState[T] {
	return portState[T]{
		pointstamps:  NewMutableAntichain[T](),
		implications: NewMutableAntichain[T](),
	}
}

// PerOperator is the tracker's view of one node's ports.
type PerOperator[T Timestamp[T]] struct {
	targets []portState[T]
	sources []portState[T]
}

func newPerOperator[T Timestamp[T]](inputs, outputs int) *PerOperator[T] {
	po := &PerOperator[T]{
		targets: make([]portState[T], inputs),
		sources: make([]portState[T], outputs),
	}

	for i := range po.targets {
		po.targets[i] = newPortState[T]()
	}

	for i := range po.sources {
		po.sources[i] = newPortState[T]()
	}

	return po
}

// TargetImplicationsEmpty reports whether no input port has frontier
// implications.
func (po *PerOperator[T]) TargetImplicationsEmpty() bool {
	for _, target := range po.targets {
		if !target.implications.IsEmpty() {
			return false
		}
	}

	return true
}

// SourcePointstampsEmpty reports whether no output port holds pending
// capabilities.
func (po *PerOperator[T]) SourcePointstampsEmpty() bool {
	for _, source := range po.sources {
		if !source.pointstamps.IsEmpty() {
			return false
		}
	}

	return true
}

// SourceImplications returns the implication antichain of the given output.
func (po *PerOperator[T]) SourceImplications(output int) *MutableAntichain[T] {
	return po.sources[output].implications
}

func (po *PerOperator[T]) state(port Port) *portState[T] {
	if port.Kind == TargetKind {
		return &po.targets[port.Index]
	}

	return &po.sources[port.Index]
}

type workItem[T Timestamp[T]] struct {
	time  T
	loc   Location
	delta int64
}

type workHeap[T Timestamp[T]] []workItem[T]

func (h workHeap[T]) Len() int { return len(h) }

func (h workHeap[T]) Less(i, j int) bool {
	return h[i].time.LessEqual(h[j].time) && h[i].time != h[j].time
}

func (h workHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workHeap[T]) Push(x any) { *h = append(*h, x.(workItem[T])) }

func (h *workHeap[T]) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]

	return item
}

// Tracker propagates pointstamp deltas to frontier implications across a
// built progress graph.
type Tracker[T Timestamp[T], S PathSummary[S, T]] struct {
	nodes     []*PerOperator[T]
	summaries [][][]*Antichain[S]
	edges     [][][]Target

	worklist      workHeap[T]
	pushedChanges *ChangeBatch[Pointstamp[T]]
	outputChanges []*ChangeBatch[T]

	totalCounts int64
}

// UpdateSource records a pointstamp delta at an operator output.
func (t *Tracker[T, S]) UpdateSource(source Source, time T, delta int64) {
	t.Update(source.Location(), time, delta)
}

// UpdateTarget records a pointstamp delta at an operator input.
func (t *Tracker[T, S]) UpdateTarget(target Target, time T, delta int64) {
	t.Update(target.Location(), time, delta)
}

// Update records a pointstamp delta at a location. The frontier
// consequences surface after the next PropagateAll.
func (t *Tracker[T, S]) Update(loc Location, time T, delta int64) {
	t.totalCounts += delta

	state := t.nodes[loc.Node].state(loc.Port)
	for _, change := range state.pointstamps.Update(time, delta) {
		heap.Push(&t.worklist, workItem[T]{time: change.Item, loc: loc, delta: change.Delta})
	}
}

// PropagateAll fully propagates every update accepted since the previous
// call. Afterwards Pushed and PushedOutputs are consistent with all of them.
func (t *Tracker[T, S]) PropagateAll() {
	for t.worklist.Len() > 0 {
		item := heap.Pop(&t.worklist).(workItem[T])

		// Coalesce further deltas for the same pointstamp.
		for t.worklist.Len() > 0 && t.worklist[0].loc == item.loc && t.worklist[0].time == item.time {
			item.delta += heap.Pop(&t.worklist).(workItem[T]).delta
		}

		if item.delta == 0 {
			continue
		}

		state := t.nodes[item.loc.Node].state(item.loc.Port)
		for _, change := range state.implications.UpdateIter([]Change[T]{{Item: item.time, Delta: item.delta}}) {
			t.record(item.loc, change)
			t.propagate(item.loc, change)
		}
	}
}

// record routes an implication frontier change to the caller-visible buffers.
func (t *Tracker[T, S]) record(loc Location, change Change[T]) {
	if loc.Port.Kind == TargetKind && loc.Node == ParentNode {
		t.outputChanges[loc.Port.Index].Update(change.Item, change.Delta)

		return
	}

	t.pushedChanges.Update(Pointstamp[T]{Loc: loc, Time: change.Item}, change.Delta)
}

// propagate forwards an implication frontier change along the graph.
func (t *Tracker[T, S]) propagate(loc Location, change Change[T]) {
	switch loc.Port.Kind {
	case TargetKind:
		for output, summaries := range t.summaries[loc.Node][loc.Port.Index] {
			for _, summary := range summaries.Elements() {
				if advanced, ok := summary.Results(change.Item); ok {
					heap.Push(&t.worklist, workItem[T]{
						time:  advanced,
						loc:   NewSourceLocation(loc.Node, output),
						delta: change.Delta,
					})
				}
			}
		}
	case SourceKind:
		for _, target := range t.edges[loc.Node][loc.Port.Index] {
			heap.Push(&t.worklist, workItem[T]{time: change.Item, loc: target.Location(), delta: change.Delta})
		}
	}
}

// Pushed returns the frontier deltas produced by the last propagation.
// Callers drain it; deltas at target locations belong to the downstream
// node's input frontier.
func (t *Tracker[T, S]) Pushed() *ChangeBatch[Pointstamp[T]] {
	return t.pushedChanges
}

// PushedOutputs returns the per-scope-output frontier deltas produced by the
// last propagation.
func (t *Tracker[T, S]) PushedOutputs() []*ChangeBatch[T] {
	return t.outputChanges
}

// IsGlobal reports whether the pointstamp participates in the scope-wide
// visible frontier: nothing earlier implies it and it is not redundant.
func (t *Tracker[T, S]) IsGlobal(loc Location, time T) bool {
	implications := t.nodes[loc.Node].state(loc.Port).implications

	if implications.LessThan(time) {
		return false
	}

	return implications.CountFor(time) <= 1
}

// TrackingAnything reports whether any pointstamps remain in the scope.
func (t *Tracker[T, S]) TrackingAnything() bool {
	return t.totalCounts != 0
}

// NodeState returns the tracker's per-port view of a node.
func (t *Tracker[T, S]) NodeState(node int) *PerOperator[T] {
	return t.nodes[node]
}
