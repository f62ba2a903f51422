package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tidalflow/pkg/dataflow"
	"github.com/Sumatoshi-tech/tidalflow/pkg/device"
	"github.com/Sumatoshi-tech/tidalflow/pkg/eventlog"
)

func TestEmptyWorkerIsQuiescent(t *testing.T) {
	w := NewSingle(nil)

	assert.False(t, w.Step())
}

func TestExecuteDeviceErrorAborts(t *testing.T) {
	boom := errors.New("no such device")

	err := Execute(Config{
		Workers:   2,
		NewDevice: func(int) (device.Device, error) { return nil, boom },
	}, func(*Worker, device.Device) {
		t.Fatal("worker function must not run after a device error")
	})

	assert.ErrorIs(t, err, boom)
}

func TestExecuteRunsEveryWorker(t *testing.T) {
	ran := make([]bool, 3)

	err := Execute(Config{Workers: 3}, func(w *Worker, _ device.Device) {
		ran[w.Index()] = true

		assert.Equal(t, 3, w.Peers())
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, true}, ran)
}

func TestWorkerCollectsEvents(t *testing.T) {
	w := NewSingle(nil)

	probe := dataflow.NewProbe()

	var input *dataflow.InputHandle[uint64]

	w.Dataflow("events", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		dataflow.Probe(stream, probe)
	})

	input.Send(1)
	input.AdvanceTo(1)
	w.StepWhile(func() bool { return probe.LessThan(1) })

	events := w.Events().Events()
	require.NotEmpty(t, events)

	kinds := make(map[eventlog.Kind]int)
	for _, event := range events {
		kinds[event.Kind]++
	}

	assert.Greater(t, kinds[eventlog.KindOperates], 0, "operator registrations are logged")
	assert.Greater(t, kinds[eventlog.KindSchedule], 0, "schedule start/stop pairs are logged")
}

func TestDataflowsAccessor(t *testing.T) {
	w := NewSingle(nil)

	w.Dataflow("one", func(scope *dataflow.Scope) {
		dataflow.Probe(mustStream(scope), dataflow.NewProbe())
	})

	require.Len(t, w.Dataflows(), 1)
	assert.Equal(t, []int{0}, w.Dataflows()[0].Path())
}

func mustStream(scope *dataflow.Scope) *dataflow.Stream[uint64] {
	_, stream := dataflow.NewInput[uint64](scope)

	return stream
}
