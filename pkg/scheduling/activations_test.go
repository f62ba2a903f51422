package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivationsPendingPromotedByAdvance(t *testing.T) {
	a := NewActivations()
	a.Activate([]int{0, 3})

	var seen []int

	a.ForExtensions([]int{0}, func(index int) { seen = append(seen, index) })
	assert.Empty(t, seen, "pending activations are invisible before Advance")

	a.Advance()
	a.ForExtensions([]int{0}, func(index int) { seen = append(seen, index) })
	assert.Equal(t, []int{3}, seen)
}

func TestActivationsDeepPathActivatesAncestors(t *testing.T) {
	a := NewActivations()
	a.Activate([]int{1, 4, 2})
	a.Advance()

	var root []int

	a.ForExtensions(nil, func(index int) { root = append(root, index) })
	assert.Equal(t, []int{1}, root)

	var scope []int

	a.ForExtensions([]int{1}, func(index int) { scope = append(scope, index) })
	assert.Equal(t, []int{4}, scope)
}

func TestActivationsDeduplicates(t *testing.T) {
	a := NewActivations()
	a.Activate([]int{0, 2})
	a.Activate([]int{0, 2})
	a.Activate([]int{0, 2, 5})
	a.Advance()

	count := 0

	a.ForExtensions([]int{0}, func(int) { count++ })
	assert.Equal(t, 1, count)
}

func TestActivationsIsActiveAndEmpty(t *testing.T) {
	a := NewActivations()
	assert.True(t, a.Empty())

	a.Activate([]int{2})
	assert.False(t, a.Empty())
	assert.False(t, a.IsActive([]int{2}), "not active until advanced")

	a.Advance()
	assert.True(t, a.IsActive([]int{2}))

	a.Advance()
	assert.True(t, a.Empty())
}
