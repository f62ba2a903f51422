package scheduling

import "slices"

// Activations tracks which scheduling paths should run. Paths activated
// during a step land in a pending set; Advance promotes them to the current
// set read by ForExtensions, so work scheduled mid-step runs on the next
// step rather than starving the current one.
type Activations struct {
	current [][]int
	pending [][]int
}

// NewActivations returns an empty activation set.
func NewActivations() *Activations {
	return &Activations{}
}

// Activate records path as pending. The slice is copied.
func (a *Activations) Activate(path []int) {
	for _, present := range a.pending {
		if slices.Equal(present, path) {
			return
		}
	}

	a.pending = append(a.pending, slices.Clone(path))
}

// Advance promotes pending activations to the current set, discarding the
// previously current ones.
func (a *Activations) Advance() {
	a.current = a.pending
	a.pending = nil
}

// ForExtensions invokes act once per distinct child index extending prefix
// among the current activations. An activation of a deeper path activates
// every scope along the way.
func (a *Activations) ForExtensions(prefix []int, act func(index int)) {
	var seen []int

	for _, path := range a.current {
		if len(path) <= len(prefix) {
			continue
		}

		if !slices.Equal(path[:len(prefix)], prefix) {
			continue
		}

		index := path[len(prefix)]
		if !slices.Contains(seen, index) {
			seen = append(seen, index)
			act(index)
		}
	}
}

// IsActive reports whether any current activation equals or extends path.
func (a *Activations) IsActive(path []int) bool {
	for _, present := range a.current {
		if len(present) >= len(path) && slices.Equal(present[:len(path)], path) {
			return true
		}
	}

	return false
}

// Empty reports whether both the current and pending sets are empty.
func (a *Activations) Empty() bool {
	return len(a.current) == 0 && len(a.pending) == 0
}
