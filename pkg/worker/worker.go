// Package worker runs the cooperative single-threaded event loop that owns
// a hierarchy of dataflows: each Step accepts pending activations, runs
// every live dataflow scope once, and exchanges progress with peer workers
// through the in-process fabric.
package worker

import (
	"io"
	"log/slog"

	"github.com/Sumatoshi-tech/tidalflow/pkg/dataflow"
	"github.com/Sumatoshi-tech/tidalflow/pkg/eventlog"
	"github.com/Sumatoshi-tech/tidalflow/pkg/observability"
	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
	"github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"
)

// Worker owns one event loop: its activations, its dataflows, and its
// endpoints into the progress fabric.
type Worker struct {
	index int
	peers int

	activations *scheduling.Activations
	fabric      *fabric

	dataflows      []*dataflowState
	nextOperatorID int

	logger  *slog.Logger
	events  *eventlog.Logger
	metrics *observability.RuntimeMetrics
}

type dataflowState struct {
	scope      scheduling.Schedule
	incomplete bool
}

// Index returns the worker's index among its peers.
func (w *Worker) Index() int { return w.index }

// Peers returns the number of workers.
func (w *Worker) Peers() int { return w.peers }

// Logger returns the worker's logger, or a discard logger if none is set.
func (w *Worker) Logger() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Events returns the worker's event log; nil when event logging is off.
func (w *Worker) Events() *eventlog.Logger { return w.events }

// Dataflows returns the installed dataflow scopes, in creation order.
func (w *Worker) Dataflows() []scheduling.Schedule {
	scopes := make([]scheduling.Schedule, len(w.dataflows))
	for i, state := range w.dataflows {
		scopes[i] = state.scope
	}

	return scopes
}

// allocateOperatorID yields worker-unique operator identifiers.
func (w *Worker) allocateOperatorID() int {
	w.nextOperatorID++

	return w.nextOperatorID - 1
}

// Dataflow builds and installs a dataflow scope. The build callback wires
// inputs, operators, and probes; initialization (summary exchange and the
// first capability propagation) completes before Dataflow returns.
func (w *Worker) Dataflow(name string, build func(scope *dataflow.Scope)) {
	index := len(w.dataflows)

	builder := progress.NewSubgraphBuilder[progress.Root, progress.RootSummary, progress.Epoch, progress.EpochSummary](
		index, nil, name, progress.EpochRefinesRoot(), w.logger, w.events)

	scope := dataflow.NewScope(builder, w.activations, w.peers, w.allocateOperatorID, w.logger)

	build(scope)

	subgraph := builder.Build(w.activations, w.fabric.progcaster(w.index, index))

	subgraph.GetInternalSummary()
	subgraph.SetExternalSummary()

	w.dataflows = append(w.dataflows, &dataflowState{scope: subgraph, incomplete: true})
}

// Step runs one scheduling quantum: pending activations become current and
// every live dataflow is scheduled once. It reports true while any
// dataflow remains incomplete or activations are pending.
func (w *Worker) Step() bool {
	w.events.AdvanceTick()
	w.activations.Advance()

	alive := false

	for _, state := range w.dataflows {
		if state.incomplete || w.activations.IsActive(state.scope.Path()) {
			state.incomplete = state.scope.Schedule()
		}

		if state.incomplete {
			alive = true
		}
	}

	w.metrics.RecordStep()

	return alive || !w.activations.Empty()
}

// StepWhile steps until condition returns false.
func (w *Worker) StepWhile(condition func() bool) {
	for condition() {
		w.Step()
	}
}
