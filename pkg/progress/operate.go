package progress

import "github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"

// Operate is implemented by every operator hosted in a subgraph. Beyond
// being schedulable it describes its shape to the progress machinery and
// hands the subgraph its shared progress buffer.
type Operate[T Timestamp[T], S PathSummary[S, T]] interface {
	scheduling.Schedule

	// Local reports whether the operator's progress statements require
	// cross-worker exchange before they are final.
	Local() bool

	// Inputs returns the number of input ports.
	Inputs() int

	// Outputs returns the number of output ports.
	Outputs() int

	// NotifyMe reports whether the operator wants to be scheduled on input
	// frontier changes.
	NotifyMe() bool

	// GetInternalSummary returns the operator's input-to-output path
	// summaries and its shared progress buffer, seeded with any initial
	// capabilities.
	GetInternalSummary() ([][]*Antichain[S], *SharedProgress[T])

	// SetExternalSummary is called once the hosting scope has summarized
	// the operator's surroundings.
	SetExternalSummary()
}

// Progcaster exchanges pointstamp updates among the workers of a scope.
// Both operations are non-blocking; every send is delivered to all workers,
// the sender included.
type Progcaster[T Timestamp[T]] interface {
	// Send broadcasts and drains the given updates.
	Send(updates *ChangeBatch[Pointstamp[T]])
	// Recv merges every received update batch into the given accumulator.
	Recv(into *ChangeBatch[Pointstamp[T]])
}
