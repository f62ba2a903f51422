package progress

// Change is a single signed update to a multiset of K.
type Change[K comparable] struct {
	Item  K
	Delta int64
}

// ChangeBatch accumulates signed updates to a multiset of K, compacting
// duplicate keys so that a drain never emits a key with net zero delta.
// Drain order is first-touch order, which keeps runs deterministic.
type ChangeBatch[K comparable] struct {
	deltas map[K]int64
	order  []K
}

// NewChangeBatch returns an empty batch.
func NewChangeBatch[K comparable]() *ChangeBatch[K] {
	return &ChangeBatch[K]{deltas: make(map[K]int64)}
}

// ChangeBatchFrom returns a batch holding the single update (item, delta).
// A zero delta yields an empty batch.
func ChangeBatchFrom[K comparable](item K, delta int64) *ChangeBatch[K] {
	batch := NewChangeBatch[K]()
	batch.Update(item, delta)

	return batch
}

// Update adds delta to the net multiplicity of item.
func (cb *ChangeBatch[K]) Update(item K, delta int64) {
	if delta == 0 {
		return
	}

	if _, seen := cb.deltas[item]; !seen {
		cb.order = append(cb.order, item)
	}

	cb.deltas[item] += delta
}

// Extend applies every change in updates.
func (cb *ChangeBatch[K]) Extend(updates []Change[K]) {
	for _, change := range updates {
		cb.Update(change.Item, change.Delta)
	}
}

// IsEmpty reports whether the batch holds no update with nonzero net delta.
func (cb *ChangeBatch[K]) IsEmpty() bool {
	for _, delta := range cb.deltas {
		if delta != 0 {
			return false
		}
	}

	return true
}

// Iter returns the compacted contents without clearing the batch. Keys with
// net zero delta are omitted; each key appears at most once.
func (cb *ChangeBatch[K]) Iter() []Change[K] {
	changes := make([]Change[K], 0, len(cb.order))

	for _, item := range cb.order {
		if delta := cb.deltas[item]; delta != 0 {
			changes = append(changes, Change[K]{Item: item, Delta: delta})
		}
	}

	return changes
}

// Drain empties the batch, returning the compacted contents.
func (cb *ChangeBatch[K]) Drain() []Change[K] {
	changes := cb.Iter()

	clear(cb.deltas)
	cb.order = cb.order[:0]

	return changes
}

// DrainInto moves the compacted contents of the batch into other.
func (cb *ChangeBatch[K]) DrainInto(other *ChangeBatch[K]) {
	for _, change := range cb.Drain() {
		other.Update(change.Item, change.Delta)
	}
}
