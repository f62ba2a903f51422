package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identitySummaryMatrix returns a 1x1 matrix holding the identity summary.
func identitySummaryMatrix() [][]*Antichain[EpochSummary] {
	return [][]*Antichain[EpochSummary]{
		{NewAntichain[EpochSummary](0)},
	}
}

// buildChain assembles scope input -> node 1 -> node 2 -> scope output.
func buildChain(t *testing.T) (*Tracker[Epoch, EpochSummary], [][]*Antichain[EpochSummary]) {
	t.Helper()

	b := NewGraphBuilder[Epoch, EpochSummary]()

	// Child zero: one scope input (its output port) and one scope output
	// (its input port), unconnected internally.
	b.AddNode(0, 1, 1, [][]*Antichain[EpochSummary]{
		{NewAntichain[EpochSummary]()},
	})
	b.AddNode(1, 1, 1, identitySummaryMatrix())
	b.AddNode(2, 1, 1, identitySummaryMatrix())

	b.AddEdge(Source{Node: 0, Port: 0}, Target{Node: 1, Port: 0})
	b.AddEdge(Source{Node: 1, Port: 0}, Target{Node: 2, Port: 0})
	b.AddEdge(Source{Node: 2, Port: 0}, Target{Node: 0, Port: 0})

	return b.Build()
}

func TestScopeSummaryChain(t *testing.T) {
	_, summary := buildChain(t)

	require.Len(t, summary, 1)
	require.Len(t, summary[0], 1)
	assert.Equal(t, []EpochSummary{0}, summary[0][0].Elements())
}

func TestPropagationReachesDownstreamTargets(t *testing.T) {
	tracker, _ := buildChain(t)

	tracker.UpdateSource(Source{Node: 1, Port: 0}, 3, 1)
	tracker.PropagateAll()

	changes := tracker.Pushed().Drain()

	expected := map[Pointstamp[Epoch]]int64{
		{Loc: NewSourceLocation(1, 0), Time: 3}: 1,
		{Loc: NewTargetLocation(2, 0), Time: 3}: 1,
		{Loc: NewSourceLocation(2, 0), Time: 3}: 1,
	}

	got := make(map[Pointstamp[Epoch]]int64)
	for _, change := range changes {
		got[change.Item] = change.Delta
	}

	assert.Equal(t, expected, got)

	// The scope output frontier moved as well.
	outputs := tracker.PushedOutputs()[0].Drain()
	require.Len(t, outputs, 1)
	assert.Equal(t, Change[Epoch]{Item: 3, Delta: 1}, outputs[0])
}

func TestPropagationIsIdempotent(t *testing.T) {
	tracker, _ := buildChain(t)

	tracker.UpdateSource(Source{Node: 1, Port: 0}, 1, 1)
	tracker.PropagateAll()
	tracker.Pushed().Drain()

	tracker.PropagateAll()
	assert.Empty(t, tracker.Pushed().Drain(), "second propagation must push nothing")
}

func TestRetractionRevertsImplications(t *testing.T) {
	tracker, _ := buildChain(t)

	tracker.UpdateSource(Source{Node: 1, Port: 0}, 2, 1)
	tracker.PropagateAll()
	tracker.Pushed().Drain()
	tracker.PushedOutputs()[0].Drain()

	tracker.UpdateSource(Source{Node: 1, Port: 0}, 2, -1)
	tracker.PropagateAll()

	got := make(map[Pointstamp[Epoch]]int64)
	for _, change := range tracker.Pushed().Drain() {
		got[change.Item] = change.Delta
	}

	assert.Equal(t, map[Pointstamp[Epoch]]int64{
		{Loc: NewSourceLocation(1, 0), Time: 2}: -1,
		{Loc: NewTargetLocation(2, 0), Time: 2}: -1,
		{Loc: NewSourceLocation(2, 0), Time: 2}: -1,
	}, got)

	assert.False(t, tracker.TrackingAnything())
}

func TestTrackingAnything(t *testing.T) {
	tracker, _ := buildChain(t)
	assert.False(t, tracker.TrackingAnything())

	tracker.UpdateTarget(Target{Node: 2, Port: 0}, 1, 1)
	assert.True(t, tracker.TrackingAnything())

	tracker.UpdateTarget(Target{Node: 2, Port: 0}, 1, -1)
	assert.False(t, tracker.TrackingAnything())
}

func TestIsGlobal(t *testing.T) {
	tracker, _ := buildChain(t)

	tracker.UpdateSource(Source{Node: 1, Port: 0}, 2, 1)
	tracker.PropagateAll()

	assert.True(t, tracker.IsGlobal(NewSourceLocation(1, 0), 2))
	assert.False(t, tracker.IsGlobal(NewTargetLocation(2, 0), 5),
		"a dominated pointstamp is not globally visible")
}

func TestNodeStateReflectsPointstamps(t *testing.T) {
	tracker, _ := buildChain(t)

	tracker.UpdateSource(Source{Node: 1, Port: 0}, 1, 1)
	tracker.PropagateAll()

	state := tracker.NodeState(1)
	assert.False(t, state.SourcePointstampsEmpty())

	downstream := tracker.NodeState(2)
	assert.False(t, downstream.TargetImplicationsEmpty())
	assert.True(t, downstream.SourcePointstampsEmpty())
}

func TestNonAdvancingCyclePanics(t *testing.T) {
	b := NewGraphBuilder[Epoch, EpochSummary]()

	b.AddNode(0, 0, 0, nil)
	b.AddNode(1, 1, 1, identitySummaryMatrix())
	b.AddNode(2, 1, 1, identitySummaryMatrix())

	b.AddEdge(Source{Node: 1, Port: 0}, Target{Node: 2, Port: 0})
	b.AddEdge(Source{Node: 2, Port: 0}, Target{Node: 1, Port: 0})

	assert.Panics(t, func() { b.Build() })
}

func TestAdvancingCycleIsAccepted(t *testing.T) {
	b := NewGraphBuilder[Epoch, EpochSummary]()

	advancing := [][]*Antichain[EpochSummary]{
		{NewAntichain[EpochSummary](1)},
	}

	b.AddNode(0, 0, 0, nil)
	b.AddNode(1, 1, 1, identitySummaryMatrix())
	b.AddNode(2, 1, 1, advancing)

	b.AddEdge(Source{Node: 1, Port: 0}, Target{Node: 2, Port: 0})
	b.AddEdge(Source{Node: 2, Port: 0}, Target{Node: 1, Port: 0})

	assert.NotPanics(t, func() { b.Build() })
}
