package dataflow

import "github.com/Sumatoshi-tech/tidalflow/pkg/progress"

// ghostOperator stands in for one operator fused into the device. It exists
// to carry a node identity in the progress plane: the subgraph attributes
// per-operator consumed/internal/produced statements to it, but it is never
// scheduled with work and never activates itself.
type ghostOperator struct {
	opShape

	peers  int
	shared *progress.SharedProgress[progress.Epoch]
}

func newGhostOperator(scope *Scope, name string) *ghostOperator {
	index, id := scope.AllocateOperator()

	op := &ghostOperator{
		opShape: opShape{
			name:    name,
			path:    scope.ChildPath(index),
			index:   index,
			id:      id,
			inputs:  1,
			outputs: 1,
			notify:  false,
		},
		peers:  scope.Peers(),
		shared: progress.NewSharedProgress[progress.Epoch](1, 1),
	}

	scope.Builder().AddChildNoPath(op, index, id)

	return op
}

// Schedule performs no work; a ghost is always complete.
func (op *ghostOperator) Schedule() bool { return false }

// GetInternalSummary reports the identity self summary and reserves the
// conventional minimum-time capability on the plain internals. The scope
// never extracts a ghost, so the reservation stays inert; it exists to keep
// the ghost shaped like any other registered operator.
func (op *ghostOperator) GetInternalSummary() ([][]*progress.Antichain[progress.EpochSummary], *progress.SharedProgress[progress.Epoch]) {
	op.shared.Internals[0].Update(0, int64(op.peers))

	return identitySummary(1, 1), op.shared
}

// SetExternalSummary completes initialization.
func (op *ghostOperator) SetExternalSummary() {}
