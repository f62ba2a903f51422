package dataflow

import "github.com/Sumatoshi-tech/tidalflow/pkg/progress"

// ProbeHandle observes the frontier at a point in the dataflow. Until the
// first frontier delivery it conservatively reports that anything may still
// arrive.
type ProbeHandle struct {
	frontier    *progress.MutableAntichain[progress.Epoch]
	initialized bool
}

// NewProbe returns an unattached handle.
func NewProbe() *ProbeHandle {
	return &ProbeHandle{frontier: progress.NewMutableAntichain[progress.Epoch]()}
}

// LessThan reports whether records at epochs strictly before t may still
// arrive at the probed point.
func (h *ProbeHandle) LessThan(t progress.Epoch) bool {
	if !h.initialized {
		return true
	}

	for _, element := range h.frontier.Frontier() {
		if element < t {
			return true
		}
	}

	return false
}

// Done reports whether the probed point can receive nothing further.
func (h *ProbeHandle) Done() bool {
	return h.initialized && h.frontier.IsEmpty()
}

// probeOperator consumes a stream and mirrors its input frontier into the
// handle.
type probeOperator[D any] struct {
	opShape

	scope  *Scope
	input  *Queue[D]
	shared *progress.SharedProgress[progress.Epoch]
	handle *ProbeHandle
}

// Probe attaches handle to the stream, returning the stream for chaining.
func Probe[D any](input *Stream[D], handle *ProbeHandle) *Stream[D] {
	scope := input.Scope()
	index, id := scope.AllocateOperator()

	op := &probeOperator[D]{
		opShape: opShape{
			name:    "Probe",
			path:    scope.ChildPath(index),
			index:   index,
			id:      id,
			inputs:  1,
			outputs: 0,
			notify:  true,
		},
		scope:  scope,
		input:  input.ConnectTo(progress.Target{Node: index, Port: 0}),
		shared: progress.NewSharedProgress[progress.Epoch](1, 0),
		handle: handle,
	}

	scope.Builder().AddChild(op, index, id)

	return input
}

// Schedule consumes pending messages and folds frontier changes into the
// handle.
func (op *probeOperator[D]) Schedule() bool {
	if changes := op.shared.Frontiers[0].Drain(); len(changes) > 0 {
		op.handle.frontier.UpdateIter(changes)
		op.handle.initialized = true
	}

	for {
		message, ok := op.input.Pop()
		if !ok {
			break
		}

		op.shared.Consumeds[0].Update(message.Time, int64(len(message.Data)))
	}

	return false
}

// GetInternalSummary reports an input-only shape.
func (op *probeOperator[D]) GetInternalSummary() ([][]*progress.Antichain[progress.EpochSummary], *progress.SharedProgress[progress.Epoch]) {
	op.scope.Activations().Activate(op.path)

	return identitySummary(1, 0), op.shared
}

// SetExternalSummary completes initialization.
func (op *probeOperator[D]) SetExternalSummary() {}
