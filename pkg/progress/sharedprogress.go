package progress

// SharedProgress is the communication buffer between a scheduled operator
// and its hosting subgraph: frontier changes flow in, consumed/internal/
// produced changes flow out. The subgraph reads and resets it once per tick;
// the operator writes it during its schedule call.
//
// A wrapper standing in for a chain of ghost operators additionally carries
// the same three outbound maps keyed by ghost identifier, plus per-ghost
// inbound frontiers, so one device invocation can be re-attributed to each
// ghost in a single pass.
type SharedProgress[T Timestamp[T]] struct {
	// Frontiers carries input frontier changes, per input port.
	Frontiers []*ChangeBatch[T]
	// Consumeds carries counts of consumed records, per input port.
	Consumeds []*ChangeBatch[T]
	// Internals carries capability changes, per output port.
	Internals []*ChangeBatch[T]
	// Produceds carries counts of produced records, per output port.
	Produceds []*ChangeBatch[T]

	// WrapperFrontiers carries per-ghost input frontier changes. Nil unless
	// the operator is a wrapper.
	WrapperFrontiers map[int][]*ChangeBatch[T]
	// WrapperConsumeds carries per-ghost consumed counts.
	WrapperConsumeds map[int][]*ChangeBatch[T]
	// WrapperInternals carries per-ghost capability changes.
	WrapperInternals map[int][]*ChangeBatch[T]
	// WrapperProduceds carries per-ghost produced counts.
	WrapperProduceds map[int][]*ChangeBatch[T]
}

// NewSharedProgress returns a plain buffer for an operator with the given
// port counts.
func NewSharedProgress[T Timestamp[T]](inputs, outputs int) *SharedProgress[T] {
	return &SharedProgress[T]{
		Frontiers: newBatches[T](inputs),
		Consumeds: newBatches[T](inputs),
		Internals: newBatches[T](outputs),
		Produceds: newBatches[T](outputs),
	}
}

// NewSharedProgressWithGhosts returns a buffer that additionally carries the
// ghost-keyed maps for the given ghost identifiers. Every ghost has one
// input and one output.
func NewSharedProgressWithGhosts[T Timestamp[T]](inputs, outputs int, ghosts []int) *SharedProgress[T] {
	sp := NewSharedProgress[T](inputs, outputs)

	sp.WrapperFrontiers = make(map[int][]*ChangeBatch[T], len(ghosts))
	sp.WrapperConsumeds = make(map[int][]*ChangeBatch[T], len(ghosts))
	sp.WrapperInternals = make(map[int][]*ChangeBatch[T], len(ghosts))
	sp.WrapperProduceds = make(map[int][]*ChangeBatch[T], len(ghosts))

	for _, ghost := range ghosts {
		sp.WrapperFrontiers[ghost] = newBatches[T](1)
		sp.WrapperConsumeds[ghost] = newBatches[T](1)
		sp.WrapperInternals[ghost] = newBatches[T](1)
		sp.WrapperProduceds[ghost] = newBatches[T](1)
	}

	return sp
}

func newBatches[T Timestamp[T]](n int) []*ChangeBatch[T] {
	batches := make([]*ChangeBatch[T], n)
	for i := range batches {
		batches[i] = NewChangeBatch[T]()
	}

	return batches
}

// FrontiersEmpty reports whether every inbound frontier batch is empty,
// including ghost-keyed ones.
func (sp *SharedProgress[T]) FrontiersEmpty() bool {
	for _, frontier := range sp.Frontiers {
		if !frontier.IsEmpty() {
			return false
		}
	}

	for _, frontiers := range sp.WrapperFrontiers {
		for _, frontier := range frontiers {
			if !frontier.IsEmpty() {
				return false
			}
		}
	}

	return true
}
