package progress

import "fmt"

// Antichain is a finite set of mutually incomparable elements. Insertion
// keeps only minimal elements.
type Antichain[T Ordered[T]] struct {
	elements []T
}

// NewAntichain returns an antichain holding the minimal elements of elems.
func NewAntichain[T Ordered[T]](elems ...T) *Antichain[T] {
	a := &Antichain[T]{}
	for _, elem := range elems {
		a.Insert(elem)
	}

	return a
}

// Insert adds element unless it is dominated by a present element, removing
// any present elements the new one dominates. Reports whether the element
// was inserted.
func (a *Antichain[T]) Insert(element T) bool {
	for _, present := range a.elements {
		if present.LessEqual(element) {
			return false
		}
	}

	kept := a.elements[:0]

	for _, present := range a.elements {
		if !element.LessEqual(present) {
			kept = append(kept, present)
		}
	}

	a.elements = append(kept, element)

	return true
}

// LessEqual reports whether some element of the antichain precedes or
// equals the argument.
func (a *Antichain[T]) LessEqual(t T) bool {
	for _, element := range a.elements {
		if element.LessEqual(t) {
			return true
		}
	}

	return false
}

// LessThan reports whether some element strictly precedes the argument.
func (a *Antichain[T]) LessThan(t T) bool {
	for _, element := range a.elements {
		if element.LessEqual(t) && element != t {
			return true
		}
	}

	return false
}

// Elements returns the elements. Callers must not mutate the slice.
func (a *Antichain[T]) Elements() []T { return a.elements }

// Len returns the number of elements.
func (a *Antichain[T]) Len() int { return len(a.elements) }

// IsEmpty reports whether the antichain has no elements.
func (a *Antichain[T]) IsEmpty() bool { return len(a.elements) == 0 }

// MutableAntichain is an antichain maintained by a multiset of timestamp
// updates: the frontier is the set of minimal timestamps with positive net
// multiplicity.
type MutableAntichain[T Ordered[T]] struct {
	counts   map[T]int64
	frontier []T
}

// NewMutableAntichain returns an empty mutable antichain.
func NewMutableAntichain[T Ordered[T]]() *MutableAntichain[T] {
	return &MutableAntichain[T]{counts: make(map[T]int64)}
}

// Frontier returns the current minimal elements. Callers must not mutate
// the slice.
func (m *MutableAntichain[T]) Frontier() []T { return m.frontier }

// IsEmpty reports whether no timestamp has positive multiplicity.
func (m *MutableAntichain[T]) IsEmpty() bool { return len(m.frontier) == 0 }

// LessEqual reports whether some frontier element precedes or equals t.
func (m *MutableAntichain[T]) LessEqual(t T) bool {
	for _, element := range m.frontier {
		if element.LessEqual(t) {
			return true
		}
	}

	return false
}

// LessThan reports whether some frontier element strictly precedes t.
func (m *MutableAntichain[T]) LessThan(t T) bool {
	for _, element := range m.frontier {
		if element.LessEqual(t) && element != t {
			return true
		}
	}

	return false
}

// CountFor returns the net multiplicity recorded for t.
func (m *MutableAntichain[T]) CountFor(t T) int64 { return m.counts[t] }

// Update applies a single update and returns the resulting frontier changes.
func (m *MutableAntichain[T]) Update(t T, delta int64) []Change[T] {
	return m.UpdateIter([]Change[T]{{Item: t, Delta: delta}})
}

// UpdateIter applies updates and returns exactly the changes to frontier
// membership: -1 for each element leaving the frontier, +1 for each element
// entering it. A negative net multiplicity is a programming error and
// panics.
func (m *MutableAntichain[T]) UpdateIter(updates []Change[T]) []Change[T] {
	if len(updates) == 0 {
		return nil
	}

	for _, update := range updates {
		count := m.counts[update.Item] + update.Delta
		if count < 0 {
			panic(fmt.Sprintf("progress: negative multiplicity %d for %v", count, update.Item))
		}

		if count == 0 {
			delete(m.counts, update.Item)
		} else {
			m.counts[update.Item] = count
		}
	}

	previous := m.frontier
	m.frontier = m.computeFrontier()

	var changes []Change[T]

	for _, old := range previous {
		if !contains(m.frontier, old) {
			changes = append(changes, Change[T]{Item: old, Delta: -1})
		}
	}

	for _, now := range m.frontier {
		if !contains(previous, now) {
			changes = append(changes, Change[T]{Item: now, Delta: 1})
		}
	}

	return changes
}

// computeFrontier returns the minimal elements among positive counts.
func (m *MutableAntichain[T]) computeFrontier() []T {
	var minimal []T

	for candidate := range m.counts {
		dominated := false

		for other := range m.counts {
			if other != candidate && other.LessEqual(candidate) {
				dominated = true

				break
			}
		}

		if !dominated {
			minimal = append(minimal, candidate)
		}
	}

	return minimal
}

func contains[T comparable](haystack []T, needle T) bool {
	for _, element := range haystack {
		if element == needle {
			return true
		}
	}

	return false
}
