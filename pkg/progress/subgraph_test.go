package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"
)

// stubOperator is a configurable child for scope tests.
type stubOperator struct {
	name     string
	path     []int
	inputs   int
	outputs  int
	notify   bool
	shared   *SharedProgress[Epoch]
	summary  [][]*Antichain[EpochSummary]
	onCall   func(sp *SharedProgress[Epoch]) bool
	schedules int
}

func newStub(name string, inputs, outputs int, ghosts []int) *stubOperator {
	var shared *SharedProgress[Epoch]
	if ghosts != nil {
		shared = NewSharedProgressWithGhosts[Epoch](inputs, outputs, ghosts)
	} else {
		shared = NewSharedProgress[Epoch](inputs, outputs)
	}

	summary := make([][]*Antichain[EpochSummary], inputs)
	for i := range summary {
		summary[i] = make([]*Antichain[EpochSummary], outputs)
		for j := range summary[i] {
			summary[i][j] = NewAntichain[EpochSummary](EpochSummary(0))
		}
	}

	return &stubOperator{name: name, inputs: inputs, outputs: outputs, shared: shared, summary: summary}
}

func (s *stubOperator) Name() string   { return s.name }
func (s *stubOperator) Path() []int    { return s.path }
func (s *stubOperator) Local() bool    { return true }
func (s *stubOperator) Inputs() int    { return s.inputs }
func (s *stubOperator) Outputs() int   { return s.outputs }
func (s *stubOperator) NotifyMe() bool { return s.notify }

func (s *stubOperator) Schedule() bool {
	s.schedules++

	if s.onCall != nil {
		return s.onCall(s.shared)
	}

	return false
}

func (s *stubOperator) GetInternalSummary() ([][]*Antichain[EpochSummary], *SharedProgress[Epoch]) {
	return s.summary, s.shared
}

func (s *stubOperator) SetExternalSummary() {}

// recordingProgcaster captures every send and loops it back on receive.
type recordingProgcaster struct {
	sends   int
	pending []Change[Pointstamp[Epoch]]
}

func (p *recordingProgcaster) Send(updates *ChangeBatch[Pointstamp[Epoch]]) {
	p.sends++
	p.pending = append(p.pending, updates.Drain()...)
}

func (p *recordingProgcaster) Recv(into *ChangeBatch[Pointstamp[Epoch]]) {
	into.Extend(p.pending)
	p.pending = nil
}

// buildOffloadScope assembles: source(1) -> wrapper(4) [ghosts 2,3] -> sink(5).
func buildOffloadScope(t *testing.T) (*Subgraph[Root, RootSummary, Epoch, EpochSummary], *recordingProgcaster, map[string]*stubOperator) {
	t.Helper()

	builder := NewSubgraphBuilder[Root, RootSummary, Epoch, EpochSummary](
		0, nil, "test", EpochRefinesRoot(), nil, nil)

	stubs := map[string]*stubOperator{
		"source": newStub("source", 0, 1, nil),
		"g0":     newStub("g0", 1, 1, nil),
		"g1":     newStub("g1", 1, 1, nil),
		"sink":   newStub("sink", 1, 0, nil),
	}

	stubs["wrapper"] = newStub("wrapper", 1, 1, []int{2, 3})

	builder.AddChild(stubs["source"], builder.AllocateChildID(), 0)
	builder.AddChildNoPath(stubs["g0"], builder.AllocateChildID(), 1)
	builder.AddChildNoPath(stubs["g1"], builder.AllocateChildID(), 2)
	builder.AddChild(stubs["wrapper"], builder.AllocateChildID(), 3)
	builder.AddChild(stubs["sink"], builder.AllocateChildID(), 4)

	builder.Connect(Source{Node: 1, Port: 0}, Target{Node: 4, Port: 0})
	builder.Connect(Source{Node: 4, Port: 0}, Target{Node: 5, Port: 0})

	builder.AddOffloadGroup(4, []int{2, 3}, [][2]int{{2, 3}})

	progcaster := &recordingProgcaster{}
	sg := builder.Build(scheduling.NewActivations(), progcaster)

	return sg, progcaster, stubs
}

func TestEdgeRewriteLaw(t *testing.T) {
	sg, _, _ := buildOffloadScope(t)

	// The wrapper node has no progress-plane edges.
	assert.Empty(t, sg.children[4].ghostEdges[0])

	// The edge into the wrapper lands at the first ghost, the edge out of
	// the wrapper leaves the last ghost, and the intra-chain edge exists.
	assert.Equal(t, []Target{{Node: 2, Port: 0}}, sg.children[1].ghostEdges[0])
	assert.Equal(t, []Target{{Node: 3, Port: 0}}, sg.children[2].ghostEdges[0])
	assert.Equal(t, []Target{{Node: 5, Port: 0}}, sg.children[3].ghostEdges[0])

	// The data plane still runs through the wrapper.
	assert.Equal(t, []Target{{Node: 4, Port: 0}}, sg.children[1].edges[0])
	assert.Equal(t, []Target{{Node: 5, Port: 0}}, sg.children[4].edges[0])

	// The boundary edges joined the wrapper's ghost-edge list.
	assert.ElementsMatch(t, [][2]int{{2, 3}, {1, 2}, {3, 5}}, sg.offloads.WrapperGhostEdges[4])
}

func TestGhostReattribution(t *testing.T) {
	sg, _, stubs := buildOffloadScope(t)

	stubs["wrapper"].onCall = func(sp *SharedProgress[Epoch]) bool {
		sp.WrapperConsumeds[2][0].Update(0, 3)
		sp.WrapperProduceds[2][0].Update(0, 3)
		sp.WrapperConsumeds[3][0].Update(0, 3)
		sp.WrapperProduceds[3][0].Update(0, 2)
		sp.WrapperInternals[3][0].Update(1, 0)

		return false
	}

	sg.activateChild(4)

	got := make(map[Pointstamp[Epoch]]int64)
	for _, change := range sg.localPointstamp.Iter() {
		got[change.Item] = change.Delta
	}

	assert.Equal(t, map[Pointstamp[Epoch]]int64{
		{Loc: NewTargetLocation(2, 0), Time: 0}: -3, // consumed at g0
		// produced of g0 lands at g1; consumed of g1 cancels all but nothing:
		// +3 (produced g0) -3 (consumed g1) coalesce away at Target(3,0).
		{Loc: NewTargetLocation(5, 0), Time: 0}: 2, // produced of g1 at the sink
	}, got)
}

func TestMassBalanceAcrossTick(t *testing.T) {
	sg, progcaster, stubs := buildOffloadScope(t)

	// A closed tick: the source consumes nothing, produces two records,
	// and the sink will consume them later; all deltas must sum to zero
	// once each message is both produced and consumed.
	stubs["source"].onCall = func(sp *SharedProgress[Epoch]) bool {
		sp.Produceds[0].Update(0, 2)

		return false
	}

	stubs["wrapper"].onCall = func(sp *SharedProgress[Epoch]) bool {
		for _, ghost := range []int{2, 3} {
			sp.WrapperConsumeds[ghost][0].Update(0, 2)
			sp.WrapperProduceds[ghost][0].Update(0, 2)
		}

		return false
	}

	stubs["sink"].onCall = func(sp *SharedProgress[Epoch]) bool {
		for _, change := range sp.Frontiers[0].Drain() {
			_ = change
		}

		sp.Consumeds[0].Update(0, 2)

		return false
	}

	sg.activations.Activate([]int{0, 1})
	sg.activations.Activate([]int{0, 4})
	sg.activations.Advance()

	sg.Schedule()

	total := int64(0)
	for _, change := range progcaster.pending {
		total += change.Delta
	}

	assert.Zero(t, total, "a closed tick must conserve pointstamp mass")
}

func TestScheduleOrderingAscending(t *testing.T) {
	sg, _, stubs := buildOffloadScope(t)

	var order []string

	for _, name := range []string{"source", "wrapper", "sink"} {
		stub := stubs[name]
		captured := name
		stub.onCall = func(*SharedProgress[Epoch]) bool {
			order = append(order, captured)

			return false
		}
	}

	// Activate out of order, twice.
	sg.activations.Activate([]int{0, 5})
	sg.activations.Activate([]int{0, 1})
	sg.activations.Activate([]int{0, 4})
	sg.activations.Activate([]int{0, 1})
	sg.activations.Advance()

	sg.Schedule()

	assert.Equal(t, []string{"source", "wrapper", "sink"}, order)
}

func TestEagerVersusDemandSend(t *testing.T) {
	t.Setenv(progressModeEnv, demandProgressMode)

	sg, progcaster, stubs := buildOffloadScope(t)
	require.False(t, sg.eagerProgressSend)

	stubs["source"].onCall = func(sp *SharedProgress[Epoch]) bool {
		sp.Produceds[0].Update(0, 1)

		return false
	}

	sg.activations.Activate([]int{0, 1})
	sg.activations.Advance()
	sg.Schedule()

	assert.Zero(t, progcaster.sends, "demand mode defers positive-only updates")

	t.Setenv(progressModeEnv, "EAGER")

	eager, eagerCaster, eagerStubs := buildOffloadScope(t)
	require.True(t, eager.eagerProgressSend)

	eagerStubs["source"].onCall = func(sp *SharedProgress[Epoch]) bool {
		sp.Produceds[0].Update(0, 1)

		return false
	}

	eager.activations.Activate([]int{0, 1})
	eager.activations.Advance()
	eager.Schedule()

	assert.Equal(t, 1, eagerCaster.sends)
}

func TestDemandSendsOnGlobalRetraction(t *testing.T) {
	t.Setenv(progressModeEnv, demandProgressMode)

	sg, progcaster, stubs := buildOffloadScope(t)

	// Seed a capability at the source; initialization injects it into the
	// tracker without the exchange, as the real runtime does.
	stubs["source"].shared.Internals[0].Update(0, 1)
	sg.GetInternalSummary()

	stubs["source"].onCall = func(sp *SharedProgress[Epoch]) bool {
		sp.Internals[0].Update(0, -1)

		return false
	}

	sg.activations.Activate([]int{0, 1})
	sg.activations.Advance()
	sg.Schedule()

	assert.Equal(t, 1, progcaster.sends,
		"a globally visible retraction forces a send even in demand mode")
}

func TestDenseIndexAssertion(t *testing.T) {
	builder := NewSubgraphBuilder[Root, RootSummary, Epoch, EpochSummary](
		0, nil, "test", EpochRefinesRoot(), nil, nil)

	builder.AllocateChildID()
	skipped := builder.AllocateChildID()
	builder.AddChild(newStub("lonely", 1, 1, nil), skipped, 0)

	assert.Panics(t, func() {
		builder.Build(scheduling.NewActivations(), &recordingProgcaster{})
	})
}

func TestUnknownGhostInOffloadEdges(t *testing.T) {
	builder := NewSubgraphBuilder[Root, RootSummary, Epoch, EpochSummary](
		0, nil, "test", EpochRefinesRoot(), nil, nil)

	assert.Panics(t, func() {
		builder.AddOffloadGroup(1, []int{2}, [][2]int{{2, 9}})
	})
}

func TestCompletionShutdownPolicy(t *testing.T) {
	sg, _, _ := buildOffloadScope(t)

	// The sink is complete with no frontier entries or capabilities: it
	// shuts down. The wrapper in the same state stays alive.
	sg.activateChild(5)
	assert.False(t, sg.ChildAlive(5))

	sg.activateChild(4)
	assert.True(t, sg.ChildAlive(4))

	// Ghosts are never shut down either.
	sg.activateChild(2)
	assert.True(t, sg.ChildAlive(2))
}
