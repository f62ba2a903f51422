package dataflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tidalflow/pkg/dataflow"
	"github.com/Sumatoshi-tech/tidalflow/pkg/device"
	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
	"github.com/Sumatoshi-tech/tidalflow/pkg/worker"
)

// rootScope downcasts a worker dataflow to its subgraph for state checks.
type rootScope = progress.Subgraph[progress.Root, progress.RootSummary, progress.Epoch, progress.EpochSummary]

func testLayout(ghosts int) device.Layout {
	return device.Layout{DataChunks: 8, OutputChunks: 8, FrontierChunks: 2, Ghosts: ghosts}
}

func TestSingleGhostOneRecordOneEpoch(t *testing.T) {
	layout := testLayout(1)

	sim, err := device.NewSim(layout)
	require.NoError(t, err)

	w := worker.NewSingle(nil)
	probe := dataflow.NewProbe()

	var (
		input *dataflow.InputHandle[uint64]
		seen  []uint64
	)

	w.Dataflow("single-ghost", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		offloaded := dataflow.Wrapper(stream, sim, dataflow.WrapperConfig{Operators: 1, Layout: layout})
		inspected := dataflow.Inspect(offloaded, func(v uint64) { seen = append(seen, v) })
		dataflow.Probe(inspected, probe)
	})

	input.Send(42)
	input.AdvanceTo(1)

	w.StepWhile(func() bool { return probe.LessThan(input.Time()) })

	assert.Equal(t, []uint64{42}, seen, "the identity chain passes the record through at its epoch")

	input.Close()
	w.StepWhile(func() bool { return !probe.Done() })

	scope := w.Dataflows()[0].(*rootScope)
	assert.False(t, scope.TrackingAnything(), "a drained scope holds no pointstamps")
}

func TestNoDataTickWithFrontierAdvance(t *testing.T) {
	layout := testLayout(2)

	sim, err := device.NewSim(layout)
	require.NoError(t, err)

	w := worker.NewSingle(nil)
	probe := dataflow.NewProbe()

	var (
		input   *dataflow.InputHandle[uint64]
		emitted int
	)

	w.Dataflow("no-data", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		offloaded := dataflow.Wrapper(stream, sim, dataflow.WrapperConfig{Operators: 2, Layout: layout})
		inspected := dataflow.Inspect(offloaded, func(uint64) { emitted++ })
		dataflow.Probe(inspected, probe)
	})

	// Advance the frontier without sending anything: the wrapper is still
	// scheduled (frontier probes reach the device) but emits no records.
	input.AdvanceTo(1)
	w.StepWhile(func() bool { return probe.LessThan(1) })

	assert.Zero(t, emitted)
	assert.Greater(t, sim.Steps, 0, "the device observes the frontier advance")

	input.Close()
	w.StepWhile(func() bool { return !probe.Done() })

	scope := w.Dataflows()[0].(*rootScope)
	assert.False(t, scope.TrackingAnything())
}

func TestTenGhostChainManyRounds(t *testing.T) {
	const (
		ghosts  = 10
		rounds  = 300
		perTick = 32
	)

	layout := testLayout(ghosts)

	sim, err := device.NewSim(layout)
	require.NoError(t, err)

	w := worker.NewSingle(nil)
	probe := dataflow.NewProbe()

	var (
		input *dataflow.InputHandle[uint64]
		count int
	)

	w.Dataflow("ten-ghosts", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		offloaded := dataflow.Wrapper(stream, sim, dataflow.WrapperConfig{Operators: ghosts, Layout: layout})
		inspected := dataflow.Inspect(offloaded, func(uint64) { count++ })
		dataflow.Probe(inspected, probe)
	})

	batch := make([]uint64, perTick)

	for round := 0; round < rounds; round++ {
		for i := range batch {
			batch[i] = uint64(21 + i)
		}

		input.SendBatch(batch)
		input.AdvanceTo(progress.Epoch(round) + 1)

		w.StepWhile(func() bool { return probe.LessThan(input.Time()) })
	}

	assert.Equal(t, rounds*perTick, count, "the identity device forwards every record")

	input.Close()
	w.StepWhile(func() bool { return !probe.Done() })

	scope := w.Dataflows()[0].(*rootScope)
	assert.False(t, scope.TrackingAnything())
	assert.False(t, w.Step(), "a drained worker goes quiescent")
}

func TestWrapperStaysAliveOthersShutDown(t *testing.T) {
	layout := testLayout(1)

	sim, err := device.NewSim(layout)
	require.NoError(t, err)

	w := worker.NewSingle(nil)
	probe := dataflow.NewProbe()

	var input *dataflow.InputHandle[uint64]

	// Children: 1 input, 2 ghost, 3 wrapper, 4 inspect, 5 probe.
	w.Dataflow("shutdown", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		offloaded := dataflow.Wrapper(stream, sim, dataflow.WrapperConfig{Operators: 1, Layout: layout})
		inspected := dataflow.Inspect(offloaded, func(uint64) {})
		dataflow.Probe(inspected, probe)
	})

	input.Send(7)
	input.AdvanceTo(1)
	w.StepWhile(func() bool { return probe.LessThan(1) })

	input.Close()
	w.StepWhile(func() bool { return !probe.Done() })

	for w.Step() {
	}

	scope := w.Dataflows()[0].(*rootScope)

	assert.False(t, scope.ChildAlive(4), "a complete record-level operator shuts down")
	assert.True(t, scope.ChildAlive(3), "the wrapper remains alive to service future input")
	assert.True(t, scope.ChildAlive(2), "ghosts are never shut down")
}

func TestFilterMapChainOnDevice(t *testing.T) {
	layout := testLayout(2)

	sim, err := device.NewSim(layout,
		device.FilterStage(func(v uint64) bool { return v%2 == 1 }),
		device.MapStage(func(v uint64) uint64 { return v * 10 }),
	)
	require.NoError(t, err)

	w := worker.NewSingle(nil)
	probe := dataflow.NewProbe()

	var (
		input *dataflow.InputHandle[uint64]
		seen  []uint64
	)

	w.Dataflow("filter-map", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		offloaded := dataflow.Wrapper(stream, sim, dataflow.WrapperConfig{Operators: 2, Layout: layout})
		inspected := dataflow.Inspect(offloaded, func(v uint64) { seen = append(seen, v) })
		dataflow.Probe(inspected, probe)
	})

	input.SendBatch([]uint64{1, 2, 3, 4, 5})
	input.AdvanceTo(1)
	w.StepWhile(func() bool { return probe.LessThan(1) })

	assert.Equal(t, []uint64{10, 30, 50}, seen)

	input.Close()
	w.StepWhile(func() bool { return !probe.Done() })

	scope := w.Dataflows()[0].(*rootScope)
	assert.False(t, scope.TrackingAnything(),
		"a filtering chain still balances: each stage's consumed matches its predecessor's produced")
}

func TestTwoWorkersExchangeProgress(t *testing.T) {
	const rounds = 20

	layout := testLayout(2)

	counts := make([]int, 2)

	err := worker.Execute(worker.Config{
		Workers: 2,
		NewDevice: func(int) (device.Device, error) {
			sim, simErr := device.NewSim(layout)
			if simErr != nil {
				return nil, simErr
			}

			return sim, nil
		},
	}, func(w *worker.Worker, dev device.Device) {
		probe := dataflow.NewProbe()

		var input *dataflow.InputHandle[uint64]

		w.Dataflow("two-workers", func(scope *dataflow.Scope) {
			handle, stream := dataflow.NewInput[uint64](scope)
			input = handle

			offloaded := dataflow.Wrapper(stream, dev, dataflow.WrapperConfig{Operators: 2, Layout: layout})
			index := w.Index()
			inspected := dataflow.Inspect(offloaded, func(uint64) { counts[index]++ })
			dataflow.Probe(inspected, probe)
		})

		for round := 0; round < rounds; round++ {
			input.Send(uint64(round))
			input.AdvanceTo(progress.Epoch(round) + 1)

			w.StepWhile(func() bool { return probe.LessThan(input.Time()) })
		}

		input.Close()
		w.StepWhile(func() bool { return !probe.Done() })
	})
	require.NoError(t, err)

	assert.Equal(t, rounds, counts[0])
	assert.Equal(t, rounds, counts[1])
}
