package worker

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Sumatoshi-tech/tidalflow/pkg/device"
	"github.com/Sumatoshi-tech/tidalflow/pkg/eventlog"
	"github.com/Sumatoshi-tech/tidalflow/pkg/observability"
	"github.com/Sumatoshi-tech/tidalflow/pkg/scheduling"
)

// Config shapes an Execute run.
type Config struct {
	// Workers is the number of event loops to spawn; zero means one.
	Workers int

	// Logger receives worker logs. Nil discards them.
	Logger *slog.Logger

	// CollectEvents enables per-worker scheduling event logs.
	CollectEvents bool

	// NewDevice supplies each worker's device handle. Nil leaves workers
	// without a device; dataflows using a wrapper then must be given one
	// explicitly.
	NewDevice func(worker int) (device.Device, error)

	// NewMetrics supplies each worker's runtime instruments. Nil disables
	// metrics.
	NewMetrics func(worker int) (*observability.RuntimeMetrics, error)
}

// Execute spawns the configured workers and runs fn on each. It returns
// once every worker function has returned; the first worker setup error
// aborts the run.
func Execute(cfg Config, fn func(w *Worker, dev device.Device)) error {
	peers := cfg.Workers
	if peers <= 0 {
		peers = 1
	}

	shared := newFabric(peers)

	workers := make([]*Worker, peers)
	devices := make([]device.Device, peers)

	for i := range workers {
		var events *eventlog.Logger
		if cfg.CollectEvents {
			events = eventlog.NewLogger()
		}

		var metrics *observability.RuntimeMetrics

		if cfg.NewMetrics != nil {
			built, err := cfg.NewMetrics(i)
			if err != nil {
				return fmt.Errorf("worker %d metrics: %w", i, err)
			}

			metrics = built
		}

		if cfg.NewDevice != nil {
			dev, err := cfg.NewDevice(i)
			if err != nil {
				return fmt.Errorf("worker %d device: %w", i, err)
			}

			devices[i] = dev
		}

		workers[i] = &Worker{
			index:       i,
			peers:       peers,
			activations: scheduling.NewActivations(),
			fabric:      shared,
			logger:      cfg.Logger,
			events:      events,
			metrics:     metrics,
		}
	}

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func(w *Worker, dev device.Device) {
			defer wg.Done()
			fn(w, dev)
		}(workers[i], devices[i])
	}

	wg.Wait()

	return nil
}

// NewSingle returns a standalone single-threaded worker for tests and
// embedding.
func NewSingle(logger *slog.Logger) *Worker {
	return &Worker{
		index:       0,
		peers:       1,
		activations: scheduling.NewActivations(),
		fabric:      newFabric(1),
		logger:      logger,
		events:      eventlog.NewLogger(),
	}
}
