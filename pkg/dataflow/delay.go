package dataflow

import (
	"fmt"

	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
)

// delayOperator stashes records under a later epoch chosen per record and
// releases each stash once the input frontier has passed its epoch. One
// capability is held per pending epoch.
type delayOperator[D any] struct {
	opShape

	scope    *Scope
	input    *Queue[D]
	output   *Tee[D]
	shared   *progress.SharedProgress[progress.Epoch]
	frontier *progress.MutableAntichain[progress.Epoch]

	delayTo func(value D, time progress.Epoch) progress.Epoch
	stash   map[progress.Epoch][]D
}

// Delay moves each record to the epoch chosen by delayTo, which must not
// regress the record's epoch.
func Delay[D any](input *Stream[D], delayTo func(value D, time progress.Epoch) progress.Epoch) *Stream[D] {
	scope := input.Scope()
	index, id := scope.AllocateOperator()

	op := &delayOperator[D]{
		opShape: opShape{
			name:    "Delay",
			path:    scope.ChildPath(index),
			index:   index,
			id:      id,
			inputs:  1,
			outputs: 1,
			notify:  true,
		},
		scope:    scope,
		input:    input.ConnectTo(progress.Target{Node: index, Port: 0}),
		output:   &Tee[D]{},
		shared:   progress.NewSharedProgress[progress.Epoch](1, 1),
		frontier: progress.NewMutableAntichain[progress.Epoch](),
		delayTo:  delayTo,
		stash:    make(map[progress.Epoch][]D),
	}

	scope.Builder().AddChild(op, index, id)

	return NewStream(scope, progress.Source{Node: index, Port: 0}, op.output)
}

// Schedule consumes input into the stash and releases every epoch the
// frontier has passed.
func (op *delayOperator[D]) Schedule() bool {
	op.frontier.UpdateIter(op.shared.Frontiers[0].Drain())

	for {
		message, ok := op.input.Pop()
		if !ok {
			break
		}

		op.shared.Consumeds[0].Update(message.Time, int64(len(message.Data)))

		for _, value := range message.Data {
			delayed := op.delayTo(value, message.Time)
			if delayed < message.Time {
				panic(fmt.Sprintf("dataflow: delay moved a record from %d back to %d", message.Time, delayed))
			}

			if len(op.stash[delayed]) == 0 {
				op.shared.Internals[0].Update(delayed, 1)
			}

			op.stash[delayed] = append(op.stash[delayed], value)
		}
	}

	for epoch, values := range op.stash {
		if op.frontier.LessEqual(epoch) {
			continue
		}

		op.output.Push(Message[D]{Time: epoch, Data: values})
		op.shared.Produceds[0].Update(epoch, int64(len(values)))
		op.shared.Internals[0].Update(epoch, -1)

		delete(op.stash, epoch)
	}

	return false
}

// GetInternalSummary reports the identity summary.
func (op *delayOperator[D]) GetInternalSummary() ([][]*progress.Antichain[progress.EpochSummary], *progress.SharedProgress[progress.Epoch]) {
	op.scope.Activations().Activate(op.path)

	return identitySummary(1, 1), op.shared
}

// SetExternalSummary completes initialization.
func (op *delayOperator[D]) SetExternalSummary() {}
