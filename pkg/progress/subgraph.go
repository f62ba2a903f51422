package progress

import (
	"container/heap"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"

	"github.com/Sumatoshi-tech/tidalflow/pkg/eventlog"
	"github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"
)

// progressModeEnv selects how eagerly a subgraph broadcasts progress
// updates. Any value other than "DEMAND" selects eager broadcasting.
const progressModeEnv = "DEFAULT_PROGRESS_MODE"

// demandProgressMode suppresses broadcasts until a globally visible
// retraction forces one.
const demandProgressMode = "DEMAND"

// intHeap is a min-heap of child indices: the set of children to activate
// this tick, popped in ascending order.
type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *intHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *intHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]

	return item
}

func (h *intHeap) push(index int) { heap.Push(h, index) }

func (h *intHeap) pop() (int, bool) {
	if h.Len() == 0 {
		return 0, false
	}

	return heap.Pop(h).(int), true
}

// SubgraphBuilder interactively collects the children and edges of a scope
// before freezing them into a Subgraph.
type SubgraphBuilder[TO Timestamp[TO], SO PathSummary[SO, TO], TI Timestamp[TI], SI PathSummary[SI, TI]] struct {
	// Name of the subgraph, for logs.
	Name string
	// Path of indices from the worker root, including this scope's index.
	Path []int

	index      int
	children   []*perOperatorState[TI, SI]
	childCount int

	edgeStash      []graphEdge
	ghostEdgeStash []graphEdge

	inputMessages      []*ChangeBatch[TI]
	outputCapabilities []*MutableAntichain[TO]

	refinement Refinement[TO, SO, TI, SI]
	offloads   *OffloadTopology

	logger *slog.Logger
	events *eventlog.Logger
}

type graphEdge struct {
	source Source
	target Target
}

// NewSubgraphBuilder creates an empty scope with the given index under
// path. The placeholder child 0 stands for the parent scope. The loggers
// may be nil.
func NewSubgraphBuilder[TO Timestamp[TO], SO PathSummary[SO, TO], TI Timestamp[TI], SI PathSummary[SI, TI]](
	index int,
	path []int,
	name string,
	refinement Refinement[TO, SO, TI, SI],
	logger *slog.Logger,
	events *eventlog.Logger,
) *SubgraphBuilder[TO, SO, TI, SI] {
	fullPath := append(slices.Clone(path), index)

	return &SubgraphBuilder[TO, SO, TI, SI]{
		Name:       name,
		Path:       fullPath,
		index:      index,
		children:   []*perOperatorState[TI, SI]{emptyChild[TI, SI](0, 0)},
		childCount: 1,
		refinement: refinement,
		offloads:   NewOffloadTopology(),
		logger:     logger,
		events:     events,
	}
}

// NewInput allocates a subgraph input fed by the given shared message
// counter, returning the corresponding target in the outer scope.
func (b *SubgraphBuilder[TO, SO, TI, SI]) NewInput(sharedCounts *ChangeBatch[TI]) Target {
	b.inputMessages = append(b.inputMessages, sharedCounts)

	return Target{Node: b.index, Port: len(b.inputMessages) - 1}
}

// NewOutput allocates a subgraph output, returning the corresponding source
// in the outer scope.
func (b *SubgraphBuilder[TO, SO, TI, SI]) NewOutput() Source {
	b.outputCapabilities = append(b.outputCapabilities, NewMutableAntichain[TO]())

	return Source{Node: b.index, Port: len(b.outputCapabilities) - 1}
}

// Connect reveals to progress tracking that records produced at source are
// consumed at target.
func (b *SubgraphBuilder[TO, SO, TI, SI]) Connect(source Source, target Target) {
	b.edgeStash = append(b.edgeStash, graphEdge{source: source, target: target})
}

// AllocateChildID reserves the next child index.
func (b *SubgraphBuilder[TO, SO, TI, SI]) AllocateChildID() int {
	b.childCount++

	return b.childCount - 1
}

// AddChild registers a child operator under the given index and
// worker-unique identifier.
func (b *SubgraphBuilder[TO, SO, TI, SI]) AddChild(child Operate[TI, SI], index, identifier int) {
	b.events.Log(eventlog.Event{
		Kind: eventlog.KindOperates,
		ID:   identifier,
		Name: child.Name(),
		Addr: append(slices.Clone(b.Path), index),
	})

	b.children = append(b.children,
		newChild(child, index, identifier, true, b.logger, b.events, b.offloads))
}

// AddChildNoPath registers a child that is invisible to operator-path
// accounting and does not count against scope completeness. Ghost operators
// are registered this way.
func (b *SubgraphBuilder[TO, SO, TI, SI]) AddChildNoPath(child Operate[TI, SI], index, identifier int) {
	b.events.Log(eventlog.Event{
		Kind: eventlog.KindOperates,
		ID:   identifier,
		Name: child.Name(),
		Addr: slices.Clone(b.Path),
	})

	b.children = append(b.children,
		newChild(child, index, identifier, false, b.logger, b.events, b.offloads))
}

// AddOffloadGroup records that wrapper stands in for the ordered ghost
// chain, with the given progress-plane edges among the ghosts.
func (b *SubgraphBuilder[TO, SO, TI, SI]) AddOffloadGroup(wrapper int, ghosts []int, ghostEdges [][2]int) {
	for _, edge := range ghostEdges {
		if !slices.Contains(ghosts, edge[0]) || !slices.Contains(ghosts, edge[1]) {
			panic(fmt.Sprintf("progress: offload edge (%d, %d) references an unknown ghost", edge[0], edge[1]))
		}
	}

	b.offloads.Register(wrapper, ghosts, ghostEdges)
}

// reorganizeEdges rewrites the stashed edges for the progress plane: an
// edge into a wrapper becomes an edge into its first ghost, an edge out of
// a wrapper an edge out of its last ghost, and the intra-chain ghost edges
// become explicit. The boundary edges join the wrapper's ghost-edge list so
// extraction can route ghost produceds to their successors.
func (b *SubgraphBuilder[TO, SO, TI, SI]) reorganizeEdges() {
	boundaries := make(map[int]*struct {
		source Source
		target Target
	})

	for wrapper := range b.offloads.WrapperGhosts {
		boundaries[wrapper] = &struct {
			source Source
			target Target
		}{}
	}

	for _, edge := range b.edgeStash {
		switch {
		case b.offloads.IsWrapper(edge.target.Node):
			boundaries[edge.target.Node].source = edge.source
		case b.offloads.IsWrapper(edge.source.Node):
			boundaries[edge.source.Node].target = edge.target
		default:
			b.ghostEdgeStash = append(b.ghostEdgeStash, edge)
		}
	}

	for wrapper, ghosts := range b.offloads.WrapperGhosts {
		boundary := boundaries[wrapper]

		first := Target{Node: ghosts[0], Port: 0}
		last := Source{Node: ghosts[len(ghosts)-1], Port: 0}

		b.ghostEdgeStash = append(b.ghostEdgeStash,
			graphEdge{source: boundary.source, target: first},
			graphEdge{source: last, target: boundary.target},
		)

		for _, edge := range b.offloads.WrapperGhostEdges[wrapper] {
			b.ghostEdgeStash = append(b.ghostEdgeStash, graphEdge{
				source: Source{Node: edge[0], Port: 0},
				target: Target{Node: edge[1], Port: 0},
			})
		}

		b.offloads.WrapperGhostEdges[wrapper] = append(b.offloads.WrapperGhostEdges[wrapper],
			[2]int{boundary.source.Node, first.Node},
			[2]int{last.Node, boundary.target.Node},
		)
	}
}

// Build freezes the scope: children are sorted and checked dense, edges are
// rewritten and handed to the reachability builder, and the tracker is
// constructed. The scope activates its own path so it is scheduled at least
// once.
func (b *SubgraphBuilder[TO, SO, TI, SI]) Build(
	activations *scheduling.Activations,
	progcaster Progcaster[TI],
) *Subgraph[TO, SO, TI, SI] {
	sort.Slice(b.children, func(i, j int) bool { return b.children[i].index < b.children[j].index })

	for i, child := range b.children {
		if i != child.index {
			panic(fmt.Sprintf("progress: child indices are not dense: found %d at position %d", child.index, i))
		}
	}

	inputs := len(b.inputMessages)
	outputs := len(b.outputCapabilities)

	// Child zero has `inputs` outputs and `outputs` inputs.
	b.children[0] = emptyChild[TI, SI](outputs, inputs)
	b.children[0].offloads = b.offloads

	builder := NewGraphBuilder[TI, SI]()

	parentSummary := make([][]*Antichain[SI], outputs)
	for i := range parentSummary {
		parentSummary[i] = make([]*Antichain[SI], inputs)
		for j := range parentSummary[i] {
			parentSummary[i][j] = NewAntichain[SI]()
		}
	}

	builder.AddNode(ParentNode, outputs, inputs, parentSummary)

	// Wrappers are replaced by their ghost chains in the progress plane, so
	// everything except the wrapper nodes is registered.
	for index, child := range b.children[1:] {
		if !b.offloads.IsWrapper(index + 1) {
			builder.AddNode(index+1, child.inputs, child.outputs, child.internalSummary)
		}
	}

	b.reorganizeEdges()

	for _, edge := range b.edgeStash {
		b.children[edge.source.Node].edges[edge.source.Port] =
			append(b.children[edge.source.Node].edges[edge.source.Port], edge.target)
	}

	for _, edge := range b.ghostEdgeStash {
		b.children[edge.source.Node].ghostEdges[edge.source.Port] =
			append(b.children[edge.source.Node].ghostEdges[edge.source.Port], edge.target)
		builder.AddEdge(edge.source, edge.target)
	}

	tracker, scopeSummary := builder.Build()

	incomplete := make([]bool, len(b.children))
	incompleteCount := 0

	for i, child := range b.children {
		if i != ParentNode && child.countForIncomplete {
			incomplete[i] = true
			incompleteCount++
		}
	}

	activations.Activate(b.Path)

	return &Subgraph[TO, SO, TI, SI]{
		name:               b.Name,
		path:               b.Path,
		inputs:             inputs,
		outputs:            outputs,
		children:           b.children,
		incomplete:         incomplete,
		incompleteCount:    incompleteCount,
		activations:        activations,
		inputMessages:      b.inputMessages,
		outputCapabilities: b.outputCapabilities,
		localPointstamp:    NewChangeBatch[Pointstamp[TI]](),
		finalPointstamp:    NewChangeBatch[Pointstamp[TI]](),
		tracker:            tracker,
		progcaster:         progcaster,
		sharedProgress:     NewSharedProgress[TO](inputs, outputs),
		scopeSummary:       scopeSummary,
		refinement:         b.refinement,
		offloads:           b.offloads,
		eagerProgressSend:  os.Getenv(progressModeEnv) != demandProgressMode,
		logger:             b.logger,
	}
}

// Subgraph is a hierarchical scope: it owns child operators, the
// reachability tracker over their progress-plane graph, and the pointstamp
// buffers that connect the two. It presents upward as a single operator
// over the outer timestamp.
type Subgraph[TO Timestamp[TO], SO PathSummary[SO, TO], TI Timestamp[TI], SI PathSummary[SI, TI]] struct {
	name string
	path []int

	inputs  int
	outputs int

	children []*perOperatorState[TI, SI]

	incomplete      []bool
	incompleteCount int

	activations *scheduling.Activations
	tempActive  intHeap

	inputMessages      []*ChangeBatch[TI]
	outputCapabilities []*MutableAntichain[TO]

	// localPointstamp buffers updates that may still require cross-worker
	// exchange; finalPointstamp buffers post-exchange updates. Neither
	// persists across ticks.
	localPointstamp *ChangeBatch[Pointstamp[TI]]
	finalPointstamp *ChangeBatch[Pointstamp[TI]]

	tracker    *Tracker[TI, SI]
	progcaster Progcaster[TI]

	sharedProgress *SharedProgress[TO]
	scopeSummary   [][]*Antichain[SI]

	refinement Refinement[TO, SO, TI, SI]
	offloads   *OffloadTopology

	eagerProgressSend bool

	logger *slog.Logger
}

// Name returns the subgraph's informative name.
func (sg *Subgraph[TO, SO, TI, SI]) Name() string { return sg.name }

// Path returns the subgraph's scheduling path.
func (sg *Subgraph[TO, SO, TI, SI]) Path() []int { return sg.path }

// Local reports false: subgraph progress is already post-exchange.
func (sg *Subgraph[TO, SO, TI, SI]) Local() bool { return false }

// Inputs returns the number of scope inputs.
func (sg *Subgraph[TO, SO, TI, SI]) Inputs() int { return sg.inputs }

// Outputs returns the number of scope outputs.
func (sg *Subgraph[TO, SO, TI, SI]) Outputs() int { return sg.outputs }

// NotifyMe reports that the subgraph wants frontier notifications.
func (sg *Subgraph[TO, SO, TI, SI]) NotifyMe() bool { return true }

// Schedule runs one tick of the scope: accept frontier changes from above,
// harvest scope input counts, merge exchanged pointstamps, propagate, run
// the active children in ascending index order, and broadcast progress.
// It reports true while any child is incomplete or pointstamps remain.
func (sg *Subgraph[TO, SO, TI, SI]) Schedule() bool {
	sg.acceptFrontier()
	sg.harvestInputs()

	sg.progcaster.Recv(sg.finalPointstamp)

	sg.propagatePointstamps()

	sg.activations.ForExtensions(sg.path, func(index int) {
		sg.tempActive.push(index)
	})

	previous := 0

	for {
		index, ok := sg.tempActive.pop()
		if !ok {
			break
		}

		if index > previous {
			sg.activateChild(index)

			previous = index
		}
	}

	sg.sendProgress()

	// Propagation may have produced cross-scope echoes; make sure another
	// tick runs to flush them.
	if !sg.finalPointstamp.IsEmpty() {
		sg.activations.Activate(sg.path)
	}

	return sg.incompleteCount > 0 || sg.tracker.TrackingAnything()
}

// acceptFrontier moves frontier changes supplied by the parent into the
// tracker, refined to the inner timestamp.
func (sg *Subgraph[TO, SO, TI, SI]) acceptFrontier() {
	for port, changes := range sg.sharedProgress.Frontiers {
		source := Source{Node: ParentNode, Port: port}
		for _, change := range changes.Drain() {
			sg.tracker.UpdateSource(source, sg.refinement.ToInner(change.Item), change.Delta)
		}
	}
}

// harvestInputs charges records entering the scope to the inputs they
// reach, balancing the charge at the scope input source so global mass is
// conserved.
func (sg *Subgraph[TO, SO, TI, SI]) harvestInputs() {
	for input, messages := range sg.inputMessages {
		source := NewSourceLocation(ParentNode, input)

		for _, change := range messages.Drain() {
			for _, target := range sg.children[ParentNode].ghostEdges[input] {
				sg.localPointstamp.Update(Pointstamp[TI]{Loc: target.Location(), Time: change.Item}, change.Delta)
			}

			sg.localPointstamp.Update(Pointstamp[TI]{Loc: source, Time: change.Item}, -change.Delta)
		}
	}
}

// propagatePointstamps commits the final pointstamps, propagates their
// frontier implications, and delivers the results: child input frontiers
// (re-routed to the wrapper for ghost nodes) and scope output capabilities.
func (sg *Subgraph[TO, SO, TI, SI]) propagatePointstamps() {
	for _, change := range sg.finalPointstamp.Drain() {
		loc, time, delta := change.Item.Loc, change.Item.Time, change.Delta

		// Child zero statements describe the boundary: its source updates
		// are records consumed from the parent (re-negated to count
		// inward), its target updates records produced for the parent.
		if loc.Node == ParentNode {
			switch loc.Port.Kind {
			case SourceKind:
				sg.sharedProgress.Consumeds[loc.Port.Index].Update(sg.refinement.ToOuter(time), -delta)
			case TargetKind:
				sg.sharedProgress.Produceds[loc.Port.Index].Update(sg.refinement.ToOuter(time), delta)
			}

			continue
		}

		sg.tracker.Update(loc, time, delta)
	}

	sg.tracker.PropagateAll()

	wrapperPushed := make(map[int]bool)

	for _, change := range sg.tracker.Pushed().Drain() {
		loc := change.Item.Loc
		if loc.Port.Kind != TargetKind {
			// Source deltas are used internally by the tracker only.
			continue
		}

		if wrapper, ok := sg.offloads.Wrapper(loc.Node); ok {
			// The ghost is never scheduled; its frontier belongs to the
			// wrapper servicing it.
			if !wrapperPushed[wrapper] {
				sg.tempActive.push(wrapper)

				wrapperPushed[wrapper] = true
			}

			sg.children[wrapper].sharedProgress.
				WrapperFrontiers[loc.Node][loc.Port.Index].
				Update(change.Item.Time, change.Delta)

			continue
		}

		if sg.children[loc.Node].notify {
			sg.tempActive.push(loc.Node)
		}

		sg.children[loc.Node].sharedProgress.
			Frontiers[loc.Port.Index].
			Update(change.Item.Time, change.Delta)
	}

	for output, internal := range sg.sharedProgress.Internals {
		pushed := sg.tracker.PushedOutputs()[output]

		outer := make([]Change[TO], 0, 4)
		for _, change := range pushed.Drain() {
			outer = append(outer, Change[TO]{Item: sg.refinement.ToOuter(change.Item), Delta: change.Delta})
		}

		for _, change := range sg.outputCapabilities[output].UpdateIter(outer) {
			internal.Update(change.Item, change.Delta)
		}
	}
}

// activateChild runs one child and collects its progress statements into
// the pre- or post-exchange buffer.
func (sg *Subgraph[TO, SO, TI, SI]) activateChild(index int) {
	child := sg.children[index]

	incomplete := child.schedule()

	if incomplete != sg.incomplete[index] {
		if incomplete {
			sg.incompleteCount++
		} else {
			sg.incompleteCount--
		}

		sg.incomplete[index] = incomplete
	}

	if !incomplete {
		// A complete child with no remaining frontier entries or pending
		// capabilities can shut down. Wrappers stay alive to service
		// future input; ghosts carry no locally checkable state.
		if !sg.offloads.IsWrapper(index) && !sg.offloads.IsGhost(index) {
			state := sg.tracker.NodeState(index)
			if state.TargetImplicationsEmpty() && state.SourcePointstampsEmpty() {
				child.shutDown()
			}
		}
	} else if debugChecks {
		child.validateProgress(sg.tracker.NodeState(index))
	}

	if child.local {
		child.extractProgress(sg.localPointstamp, &sg.tempActive)
	} else {
		child.extractProgress(sg.finalPointstamp, &sg.tempActive)
	}
}

// sendProgress broadcasts the locally accumulated pointstamps. In demand
// mode the broadcast is deferred until a globally visible retraction makes
// it mandatory.
func (sg *Subgraph[TO, SO, TI, SI]) sendProgress() {
	mustSend := sg.eagerProgressSend

	if !mustSend {
		for _, change := range sg.localPointstamp.Iter() {
			if change.Delta < 0 && sg.tracker.IsGlobal(change.Item.Loc, change.Item.Time) {
				mustSend = true

				break
			}
		}
	}

	if mustSend {
		sg.progcaster.Send(sg.localPointstamp)
	}
}

// GetInternalSummary lifts the scope summary to the outer timestamp and
// injects every child's initial capabilities into the tracker, reporting
// the resulting scope capabilities upward.
func (sg *Subgraph[TO, SO, TI, SI]) GetInternalSummary() ([][]*Antichain[SO], *SharedProgress[TO]) {
	if sg.children[ParentNode].outputs != sg.inputs || sg.children[ParentNode].inputs != sg.outputs {
		panic("progress: child zero shape does not match the scope boundary")
	}

	internalSummary := make([][]*Antichain[SO], sg.inputs)

	for input := range internalSummary {
		internalSummary[input] = make([]*Antichain[SO], sg.outputs)

		for output := range internalSummary[input] {
			internalSummary[input][output] = NewAntichain[SO]()

			for _, pathSummary := range sg.scopeSummary[input][output].Elements() {
				internalSummary[input][output].Insert(sg.refinement.Summarize(pathSummary))
			}
		}
	}

	// Ghosts hold no extractable state of their own; their initial
	// capabilities arrive through the wrapper's ghost-keyed buffers.
	for index, child := range sg.children {
		if !sg.offloads.IsGhost(index) {
			child.extractProgress(sg.finalPointstamp, &sg.tempActive)
		}
	}

	sg.propagatePointstamps()

	return internalSummary, sg.sharedProgress
}

// SetExternalSummary completes initialization once the parent has
// summarized the scope's surroundings.
func (sg *Subgraph[TO, SO, TI, SI]) SetExternalSummary() {
	sg.propagatePointstamps()

	for _, child := range sg.children {
		if child.operator != nil {
			child.operator.SetExternalSummary()
		}
	}
}

// ChildAlive reports whether the child at index still holds its operator.
// Intended for tests and diagnostics.
func (sg *Subgraph[TO, SO, TI, SI]) ChildAlive(index int) bool {
	return sg.children[index].operator != nil
}

// TrackingAnything reports whether the scope's tracker still holds
// pointstamps.
func (sg *Subgraph[TO, SO, TI, SI]) TrackingAnything() bool {
	return sg.tracker.TrackingAnything()
}
