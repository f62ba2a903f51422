package dataflow

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
	"github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"
)

// inputOperator introduces records from outside the dataflow. It holds one
// capability at the handle's current epoch; AdvanceTo moves it forward.
type inputOperator[D any] struct {
	opShape

	scope  *Scope
	output *Tee[D]
	shared *progress.SharedProgress[progress.Epoch]
	staged []Message[D]
}

// InputHandle feeds one input operator. Sends are stamped with the
// handle's current epoch; the dataflow observes an epoch as complete once
// the handle advances past it.
type InputHandle[D any] struct {
	op          *inputOperator[D]
	activations *scheduling.Activations
	path        []int
	epoch       progress.Epoch
	closed      bool
}

// NewInput creates an input operator in the scope and returns its handle
// and stream.
func NewInput[D any](scope *Scope) (*InputHandle[D], *Stream[D]) {
	index, id := scope.AllocateOperator()

	op := &inputOperator[D]{
		opShape: opShape{
			name:    "Input",
			path:    scope.ChildPath(index),
			index:   index,
			id:      id,
			inputs:  0,
			outputs: 1,
			notify:  false,
		},
		scope:  scope,
		output: &Tee[D]{},
		shared: progress.NewSharedProgress[progress.Epoch](0, 1),
	}

	scope.Builder().AddChild(op, index, id)

	handle := &InputHandle[D]{
		op:          op,
		activations: scope.Activations(),
		path:        op.path,
	}

	return handle, NewStream(scope, progress.Source{Node: index, Port: 0}, op.output)
}

// Schedule flushes staged batches into the output.
func (op *inputOperator[D]) Schedule() bool {
	for _, message := range op.staged {
		op.output.Push(message)
		op.shared.Produceds[0].Update(message.Time, int64(len(message.Data)))
	}

	op.staged = op.staged[:0]

	return false
}

// GetInternalSummary reserves the initial capability at the minimum epoch,
// one per worker instance.
func (op *inputOperator[D]) GetInternalSummary() ([][]*progress.Antichain[progress.EpochSummary], *progress.SharedProgress[progress.Epoch]) {
	op.scope.Activations().Activate(op.path)
	op.shared.Internals[0].Update(0, int64(op.scope.Peers()))

	return identitySummary(0, 1), op.shared
}

// SetExternalSummary completes initialization.
func (op *inputOperator[D]) SetExternalSummary() {}

// Time returns the handle's current epoch.
func (h *InputHandle[D]) Time() progress.Epoch { return h.epoch }

// Send stages one record at the current epoch.
func (h *InputHandle[D]) Send(value D) {
	h.SendBatch([]D{value})
}

// SendBatch stages a batch of records at the current epoch.
func (h *InputHandle[D]) SendBatch(values []D) {
	if h.closed {
		panic("dataflow: send on a closed input")
	}

	if len(values) == 0 {
		return
	}

	h.op.staged = append(h.op.staged, Message[D]{Time: h.epoch, Data: slices.Clone(values)})
	h.activations.Activate(h.path)
}

// AdvanceTo moves the handle's capability to epoch, promising that no
// further records will be sent at earlier epochs.
func (h *InputHandle[D]) AdvanceTo(epoch progress.Epoch) {
	if h.closed {
		panic("dataflow: advance on a closed input")
	}

	if epoch < h.epoch {
		panic(fmt.Sprintf("dataflow: cannot advance input from %d back to %d", h.epoch, epoch))
	}

	if epoch == h.epoch {
		return
	}

	h.op.shared.Internals[0].Update(epoch, 1)
	h.op.shared.Internals[0].Update(h.epoch, -1)
	h.epoch = epoch

	h.activations.Activate(h.path)
}

// Close drops the capability; the input will produce nothing further.
func (h *InputHandle[D]) Close() {
	if h.closed {
		return
	}

	h.op.shared.Internals[0].Update(h.epoch, -1)
	h.closed = true

	h.activations.Activate(h.path)
}
