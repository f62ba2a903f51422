package progress

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/Sumatoshi-tech/tidalflow/pkg/eventlog"
)

// perOperatorState is a subgraph's record of one child operator.
type perOperatorState[T Timestamp[T], S PathSummary[S, T]] struct {
	name  string
	index int
	id    int

	local              bool
	notify             bool
	inputs             int
	outputs            int
	countForIncomplete bool

	// operator is nil once the child has shut down.
	operator Operate[T, S]

	// edges are the data-plane successors per output port: who to wake when
	// records are produced.
	edges [][]Target
	// ghostEdges are the progress-plane successors per output port: who
	// sees the pointstamps. The two differ at a wrapper, which owns the
	// data plane while its ghosts own the progress plane.
	ghostEdges [][]Target

	sharedProgress  *SharedProgress[T]
	internalSummary [][]*Antichain[S]

	logger   *slog.Logger
	events   *eventlog.Logger
	offloads *OffloadTopology
}

// emptyChild returns the placeholder record standing for the parent scope:
// its outputs are the subgraph's inputs and vice versa.
func emptyChild[T Timestamp[T], S PathSummary[S, T]](inputs, outputs int) *perOperatorState[T, S] {
	return &perOperatorState[T, S]{
		name:               "External",
		index:              ParentNode,
		id:                 math.MaxInt,
		notify:             true,
		countForIncomplete: true,
		inputs:             inputs,
		outputs:            outputs,
		edges:              make([][]Target, outputs),
		ghostEdges:         make([][]Target, outputs),
		sharedProgress:     NewSharedProgress[T](inputs, outputs),
		offloads:           NewOffloadTopology(),
	}
}

func newChild[T Timestamp[T], S PathSummary[S, T]](
	operator Operate[T, S],
	index, id int,
	countForIncomplete bool,
	logger *slog.Logger,
	events *eventlog.Logger,
	offloads *OffloadTopology,
) *perOperatorState[T, S] {
	inputs := operator.Inputs()
	outputs := operator.Outputs()

	internalSummary, sharedProgress := operator.GetInternalSummary()

	if len(internalSummary) != inputs {
		panic(fmt.Sprintf("progress: operator %q summary has %d rows, want %d",
			operator.Name(), len(internalSummary), inputs))
	}

	for _, row := range internalSummary {
		if len(row) != outputs {
			panic(fmt.Sprintf("progress: operator %q summary has %d columns, want %d",
				operator.Name(), len(row), outputs))
		}
	}

	return &perOperatorState[T, S]{
		name:               operator.Name(),
		index:              index,
		id:                 id,
		local:              operator.Local(),
		notify:             operator.NotifyMe(),
		inputs:             inputs,
		outputs:            outputs,
		countForIncomplete: countForIncomplete,
		operator:           operator,
		edges:              make([][]Target, outputs),
		ghostEdges:         make([][]Target, outputs),
		sharedProgress:     sharedProgress,
		internalSummary:    internalSummary,
		logger:             logger,
		events:             events,
		offloads:           offloads,
	}
}

// schedule runs the child once, reporting whether it remains incomplete.
func (child *perOperatorState[T, S]) schedule() bool {
	if child.operator == nil {
		// Reporting progress at a closed operator means the scope's
		// accounting has gone wrong.
		if !child.sharedProgress.FrontiersEmpty() {
			panic(fmt.Sprintf("progress: operator %q received frontier changes after shutdown", child.name))
		}

		return false
	}

	if !child.sharedProgress.FrontiersEmpty() {
		child.events.Log(eventlog.Event{Kind: eventlog.KindPushProgress, ID: child.id})
	}

	child.events.Log(eventlog.Event{Kind: eventlog.KindSchedule, ID: child.id, Start: true})
	incomplete := child.operator.Schedule()
	child.events.Log(eventlog.Event{Kind: eventlog.KindSchedule, ID: child.id})

	return incomplete
}

// shutDown releases the operator. The record remains as a tombstone.
func (child *perOperatorState[T, S]) shutDown() {
	if child.operator == nil {
		return
	}

	child.events.Log(eventlog.Event{Kind: eventlog.KindShutdown, ID: child.id})

	if child.logger != nil {
		child.logger.Debug("operator shut down", "name", child.name, "index", child.index)
	}

	child.operator = nil
	child.name += "(tombstone)"
}

// extractProgress converts the child's shared progress statements into
// pointstamp updates, waking data-plane successors as records flow. For a
// wrapper, the ghost-keyed statements are re-attributed to the ghost nodes
// first, so one device invocation lands as per-ghost progress.
func (child *perOperatorState[T, S]) extractProgress(
	pointstamps *ChangeBatch[Pointstamp[T]],
	tempActive *intHeap,
) {
	sp := child.sharedProgress

	if ghosts, ok := child.offloads.WrapperGhosts[child.index]; ok {
		ghostEdges := child.offloads.WrapperGhostEdges[child.index]

		for _, ghost := range ghosts {
			for input, consumed := range sp.WrapperConsumeds[ghost] {
				target := NewTargetLocation(ghost, input)
				for _, change := range consumed.Drain() {
					pointstamps.Update(Pointstamp[T]{Loc: target, Time: change.Item}, -change.Delta)
				}
			}

			for output, internal := range sp.WrapperInternals[ghost] {
				source := NewSourceLocation(ghost, output)
				for _, change := range internal.Drain() {
					pointstamps.Update(Pointstamp[T]{Loc: source, Time: change.Item}, change.Delta)
				}
			}

			for _, produced := range sp.WrapperProduceds[ghost] {
				for _, change := range produced.Drain() {
					for _, edge := range ghostEdges {
						if edge[0] != ghost {
							continue
						}

						target := NewTargetLocation(edge[1], 0)
						pointstamps.Update(Pointstamp[T]{Loc: target, Time: change.Item}, change.Delta)
						tempActive.push(edge[1])
					}
				}
			}
		}
	}

	for input, consumed := range sp.Consumeds {
		target := NewTargetLocation(child.index, input)
		for _, change := range consumed.Drain() {
			pointstamps.Update(Pointstamp[T]{Loc: target, Time: change.Item}, -change.Delta)
		}
	}

	for output, internal := range sp.Internals {
		source := NewSourceLocation(child.index, output)
		for _, change := range internal.Drain() {
			pointstamps.Update(Pointstamp[T]{Loc: source, Time: change.Item}, change.Delta)
		}
	}

	for output, produced := range sp.Produceds {
		for _, change := range produced.Drain() {
			for _, target := range child.edges[output] {
				tempActive.push(target.Node)
			}

			for _, target := range child.ghostEdges[output] {
				pointstamps.Update(Pointstamp[T]{Loc: target.Location(), Time: change.Item}, change.Delta)
			}
		}
	}
}

// validateProgress checks that the child's outbound statements are
// explainable: an internal capability increment or a production requires
// either a consumed message at or before that time or an existing implication.
// Only invoked in debug builds.
func (child *perOperatorState[T, S]) validateProgress(state *PerOperator[T]) {
	sp := child.sharedProgress

	consumedAtOrBefore := func(time T) bool {
		for _, consumed := range sp.Consumeds {
			for _, change := range consumed.Iter() {
				if change.Delta > 0 && change.Item.LessEqual(time) {
					return true
				}
			}
		}

		return false
	}

	for output, internal := range sp.Internals {
		for _, change := range internal.Iter() {
			if change.Delta <= 0 {
				continue
			}

			if !consumedAtOrBefore(change.Item) && !state.SourceImplications(output).LessEqual(change.Item) {
				panic(fmt.Sprintf("progress: unsupported internal increment at %v by %q", change.Item, child.name))
			}
		}
	}

	for output, produced := range sp.Produceds {
		for _, change := range produced.Iter() {
			if change.Delta <= 0 {
				continue
			}

			if !consumedAtOrBefore(change.Item) && !state.SourceImplications(output).LessEqual(change.Item) {
				panic(fmt.Sprintf("progress: unsupported production at %v by %q", change.Item, child.name))
			}
		}
	}
}
