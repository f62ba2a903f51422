// Package dataflow provides the stream surface over a worker-level scope:
// inputs, probes, record-level operators, and the wrapper that offloads a
// fused chain of operators onto an accelerator. Streams carry batches of
// records stamped with an epoch; progress flows through the scope's
// subgraph.
package dataflow

import (
	"io"
	"log/slog"
	"slices"

	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
	"github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"
)

// Builder is the scope's underlying subgraph builder, fixed to the
// epoch-in-root timestamp pair every worker-level dataflow uses.
type Builder = progress.SubgraphBuilder[progress.Root, progress.RootSummary, progress.Epoch, progress.EpochSummary]

// Scope wires operator construction into a subgraph builder: it allocates
// child indices and worker-unique identifiers, and exposes the activation
// set operators use to request scheduling.
type Scope struct {
	builder     *Builder
	activations *scheduling.Activations
	peers       int
	allocateID  func() int
	logger      *slog.Logger
}

// NewScope returns a scope over the given builder. allocateID must yield
// worker-unique operator identifiers.
func NewScope(
	builder *Builder,
	activations *scheduling.Activations,
	peers int,
	allocateID func() int,
	logger *slog.Logger,
) *Scope {
	return &Scope{
		builder:     builder,
		activations: activations,
		peers:       peers,
		allocateID:  allocateID,
		logger:      logger,
	}
}

// Builder exposes the underlying subgraph builder.
func (s *Scope) Builder() *Builder { return s.builder }

// Activations exposes the worker's activation set.
func (s *Scope) Activations() *scheduling.Activations { return s.activations }

// Path returns the scope's scheduling path.
func (s *Scope) Path() []int { return s.builder.Path }

// Peers returns the number of workers running this dataflow.
func (s *Scope) Peers() int { return s.peers }

// AllocateOperator reserves a child index and a worker-unique identifier
// for a new operator.
func (s *Scope) AllocateOperator() (index, id int) {
	return s.builder.AllocateChildID(), s.allocateID()
}

// ChildPath returns the scheduling path of the child at index.
func (s *Scope) ChildPath(index int) []int {
	return append(slices.Clone(s.Path()), index)
}

// Logger returns the scope's logger, or a discard logger if none is set.
func (s *Scope) Logger() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
