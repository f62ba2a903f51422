package dataflow

import (
	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
)

// opShape carries the descriptive half of an operator: name, address, and
// port counts. Operators embed it and add their scheduling logic.
type opShape struct {
	name    string
	path    []int
	index   int
	id      int
	inputs  int
	outputs int
	notify  bool
}

// Name returns the operator name.
func (o *opShape) Name() string { return o.name }

// Path returns the operator's scheduling path.
func (o *opShape) Path() []int { return o.path }

// Local reports that the operator's progress statements are pre-exchange.
func (o *opShape) Local() bool { return true }

// Inputs returns the number of input ports.
func (o *opShape) Inputs() int { return o.inputs }

// Outputs returns the number of output ports.
func (o *opShape) Outputs() int { return o.outputs }

// NotifyMe reports whether the operator wants frontier notifications.
func (o *opShape) NotifyMe() bool { return o.notify }

// identitySummary builds an inputs-by-outputs summary matrix whose every
// cell holds the identity path summary.
func identitySummary(inputs, outputs int) [][]*progress.Antichain[progress.EpochSummary] {
	summary := make([][]*progress.Antichain[progress.EpochSummary], inputs)

	for input := range summary {
		summary[input] = make([]*progress.Antichain[progress.EpochSummary], outputs)
		for output := range summary[input] {
			summary[input][output] = progress.NewAntichain[progress.EpochSummary](progress.EpochSummary(0))
		}
	}

	return summary
}

// unaryOperator runs record-at-a-time logic between one input and one
// output port, consuming and producing at the batch timestamp.
type unaryOperator[DIn, DOut any] struct {
	opShape

	scope    *Scope
	input    *Queue[DIn]
	output   *Tee[DOut]
	shared   *progress.SharedProgress[progress.Epoch]
	frontier *progress.MutableAntichain[progress.Epoch]

	logic func(time progress.Epoch, data []DIn) []DOut
}

// Unary builds a one-input one-output operator applying logic to every
// batch. The returned stream carries the operator's output.
func Unary[DIn, DOut any](
	input *Stream[DIn],
	name string,
	notify bool,
	logic func(time progress.Epoch, data []DIn) []DOut,
) *Stream[DOut] {
	scope := input.Scope()
	index, id := scope.AllocateOperator()

	op := &unaryOperator[DIn, DOut]{
		opShape: opShape{
			name:    name,
			path:    scope.ChildPath(index),
			index:   index,
			id:      id,
			inputs:  1,
			outputs: 1,
			notify:  notify,
		},
		scope:    scope,
		input:    input.ConnectTo(progress.Target{Node: index, Port: 0}),
		output:   &Tee[DOut]{},
		shared:   progress.NewSharedProgress[progress.Epoch](1, 1),
		frontier: progress.NewMutableAntichain[progress.Epoch](),
		logic:    logic,
	}

	scope.Builder().AddChild(op, index, id)

	return NewStream(scope, progress.Source{Node: index, Port: 0}, op.output)
}

// Schedule drains pending input batches through the operator logic.
func (op *unaryOperator[DIn, DOut]) Schedule() bool {
	op.frontier.UpdateIter(op.shared.Frontiers[0].Drain())

	for {
		message, ok := op.input.Pop()
		if !ok {
			break
		}

		op.shared.Consumeds[0].Update(message.Time, int64(len(message.Data)))

		out := op.logic(message.Time, message.Data)
		if len(out) > 0 {
			op.output.Push(Message[DOut]{Time: message.Time, Data: out})
			op.shared.Produceds[0].Update(message.Time, int64(len(out)))
		}
	}

	return false
}

// GetInternalSummary reports the identity summary; the operator holds no
// initial capabilities.
func (op *unaryOperator[DIn, DOut]) GetInternalSummary() ([][]*progress.Antichain[progress.EpochSummary], *progress.SharedProgress[progress.Epoch]) {
	op.scope.Activations().Activate(op.path)

	return identitySummary(1, 1), op.shared
}

// SetExternalSummary completes initialization.
func (op *unaryOperator[DIn, DOut]) SetExternalSummary() {}

// Inspect invokes action on every record, passing the stream through.
func Inspect[D any](input *Stream[D], action func(D)) *Stream[D] {
	return Unary(input, "Inspect", true, func(_ progress.Epoch, data []D) []D {
		for _, value := range data {
			action(value)
		}

		return data
	})
}

// Map yields a new record for each input record.
func Map[DIn, DOut any](input *Stream[DIn], transform func(DIn) DOut) *Stream[DOut] {
	return Unary(input, "Map", true, func(_ progress.Epoch, data []DIn) []DOut {
		out := make([]DOut, len(data))
		for i, value := range data {
			out[i] = transform(value)
		}

		return out
	})
}

// Filter keeps the records satisfying keep.
func Filter[D any](input *Stream[D], keep func(D) bool) *Stream[D] {
	return Unary(input, "Filter", true, func(_ progress.Epoch, data []D) []D {
		var out []D

		for _, value := range data {
			if keep(value) {
				out = append(out, value)
			}
		}

		return out
	})
}
