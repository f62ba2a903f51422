package dataflow

import (
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/tidalflow/pkg/device"
	"github.com/Sumatoshi-tech/tidalflow/pkg/observability"
	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
)

// WrapperConfig shapes an offloaded operator chain.
type WrapperConfig struct {
	// Operators is the number of fused operators the device hosts.
	Operators int
	// Layout overrides the buffer geometry; zero value selects the
	// driver-fixed default for Operators ghosts.
	Layout device.Layout
	// Metrics records device invocations. Nil-safe.
	Metrics *observability.RuntimeMetrics
}

// wrapperOperator is the sole schedulable host operator standing in for a
// chain of ghosts. Each schedule call assembles the device input buffer
// (frontiers always, records when present), invokes the device, emits the
// decoded records, and demultiplexes the per-ghost progress block into the
// ghost-keyed shared progress maps.
type wrapperOperator struct {
	opShape

	scope  *Scope
	dev    device.Device
	hc     *device.HardwareCommon
	layout device.Layout

	input  *Queue[uint64]
	output *Tee[uint64]
	shared *progress.SharedProgress[progress.Epoch]

	// ghosts lists the ghost node indices in chain order; frontiers mirrors
	// each ghost's input frontier.
	ghosts    []int
	frontiers []*progress.MutableAntichain[progress.Epoch]

	started bool
	metrics *observability.RuntimeMetrics
}

// Wrapper returns a stream computed by a device-fused chain of cfg.Operators
// operators. It registers the ghost chain and the wrapper with the scope;
// the wrapper is the only schedulable entity of the group.
func Wrapper(input *Stream[uint64], dev device.Device, cfg WrapperConfig) *Stream[uint64] {
	scope := input.Scope()

	if cfg.Operators <= 0 {
		panic("dataflow: wrapper needs at least one fused operator")
	}

	layout := cfg.Layout
	if layout == (device.Layout{}) {
		layout = device.DefaultLayout(cfg.Operators)
	}

	if err := layout.Validate(); err != nil {
		panic(fmt.Sprintf("dataflow: %v", err))
	}

	ghosts := make([]int, cfg.Operators)
	for i := range ghosts {
		ghosts[i] = newGhostOperator(scope, fmt.Sprintf("Ghost%d", i)).index
	}

	ghostEdges := make([][2]int, 0, len(ghosts)-1)
	for i := 1; i < len(ghosts); i++ {
		ghostEdges = append(ghostEdges, [2]int{ghosts[i-1], ghosts[i]})
	}

	index, id := scope.AllocateOperator()

	op := &wrapperOperator{
		opShape: opShape{
			name:    "Wrapper",
			path:    scope.ChildPath(index),
			index:   index,
			id:      id,
			inputs:  1,
			outputs: 1,
			notify:  false,
		},
		scope:   scope,
		dev:     dev,
		hc:      device.NewHardwareCommon(layout.HostWords(), layout.OutputWords()),
		layout:  layout,
		input:   input.ConnectTo(progress.Target{Node: index, Port: 0}),
		output:  &Tee[uint64]{},
		shared:  progress.NewSharedProgressWithGhosts[progress.Epoch](1, 1, ghosts),
		ghosts:  ghosts,
		metrics: cfg.Metrics,
	}

	op.frontiers = make([]*progress.MutableAntichain[progress.Epoch], len(ghosts))
	for i := range op.frontiers {
		op.frontiers[i] = progress.NewMutableAntichain[progress.Epoch]()
	}

	scope.Builder().AddChild(op, index, id)
	scope.Builder().AddOffloadGroup(index, ghosts, ghostEdges)

	return NewStream(scope, progress.Source{Node: index, Port: 0}, op.output)
}

// Schedule runs one wrapper tick: refresh the ghost frontier mirrors, feed
// every pending batch through the device, and on an idle tick probe the
// device with frontiers alone.
func (op *wrapperOperator) Schedule() bool {
	for i, ghost := range op.ghosts {
		op.frontiers[i].UpdateIter(op.shared.WrapperFrontiers[ghost][0].Drain())
	}

	if !op.started {
		// Discard the initial capability reservation; the device accounts
		// for the chain's capabilities from here on.
		for _, ghost := range op.ghosts {
			op.shared.WrapperInternals[ghost][0].Update(0, -1)
		}

		op.started = true
	}

	hasData := false

	for {
		message, ok := op.input.Pop()
		if !ok {
			break
		}

		hasData = true

		records, ghosts := op.invoke(uint64(message.Time), message.Data)

		if len(records) > 0 {
			op.output.Push(Message[uint64]{Time: message.Time, Data: records})
		}

		for i, ghost := range op.ghosts {
			op.shared.WrapperConsumeds[ghost][0].Update(message.Time, ghosts[i].Consumed)
			op.shared.WrapperProduceds[ghost][0].Update(message.Time, ghosts[i].Produced)

			if ghosts[i].InternalValid {
				op.shared.WrapperInternals[ghost][0].Update(
					progress.Epoch(ghosts[i].InternalTime), ghosts[i].InternalDelta)
			}
		}
	}

	if !hasData {
		records, ghosts := op.invoke(0, nil)

		// Without an input batch the emission time comes from the final
		// ghost's reported capability.
		if len(records) > 0 {
			last := len(op.ghosts) - 1
			lastGhost := op.ghosts[last]

			if !ghosts[last].InternalValid {
				panic(fmt.Sprintf("dataflow: device emitted %d records without a capability time", len(records)))
			}

			emitAt := progress.Epoch(ghosts[last].InternalTime)

			op.output.Push(Message[uint64]{Time: emitAt, Data: records})
			op.shared.WrapperProduceds[lastGhost][0].Update(emitAt, ghosts[last].Produced)
			op.shared.WrapperInternals[lastGhost][0].Update(emitAt, ghosts[last].InternalDelta)
		}
	}

	return false
}

// invoke runs one device step over the mapped buffers.
func (op *wrapperOperator) invoke(time uint64, data []uint64) ([]uint64, []device.GhostProgress) {
	frontiers := make([][]uint64, len(op.frontiers))
	for i, mirror := range op.frontiers {
		elements := mirror.Frontier()

		frontier := make([]uint64, len(elements))
		for j, element := range elements {
			frontier[j] = uint64(element)
		}

		frontiers[i] = frontier
	}

	if err := op.layout.EncodeInput(op.hc.HostMemory(), time, frontiers, data); err != nil {
		panic(fmt.Sprintf("dataflow: %v", err))
	}

	started := timeNow()

	if err := op.dev.Run(op.hc); err != nil {
		panic(fmt.Sprintf("dataflow: device failure: %v", err))
	}

	records, ghosts := op.layout.DecodeOutput(op.hc.OutputMemory())

	op.metrics.RecordDeviceCall(timeNow().Sub(started), len(records))

	return records, ghosts
}

// timeNow is a seam for tests.
var timeNow = time.Now

// GetInternalSummary reserves the minimum-time capability for every ghost
// on the ghost-keyed internals and asks to be scheduled at least once.
func (op *wrapperOperator) GetInternalSummary() ([][]*progress.Antichain[progress.EpochSummary], *progress.SharedProgress[progress.Epoch]) {
	op.scope.Activations().Activate(op.path)

	for _, ghost := range op.ghosts {
		op.shared.WrapperInternals[ghost][0].Update(0, int64(op.scope.Peers()))
	}

	return identitySummary(1, 1), op.shared
}

// SetExternalSummary runs the wrapper once so the device observes the
// initial frontiers.
func (op *wrapperOperator) SetExternalSummary() {
	op.Schedule()
}
