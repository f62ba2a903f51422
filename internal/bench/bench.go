// Package bench drives the offload benchmark: a dataflow per worker feeding
// an input through a device-fused operator chain into a probe, stepped for
// a configured number of epochs while per-epoch latencies are recorded.
package bench

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/tidalflow/internal/config"
	"github.com/Sumatoshi-tech/tidalflow/pkg/dataflow"
	"github.com/Sumatoshi-tech/tidalflow/pkg/device"
	"github.com/Sumatoshi-tech/tidalflow/pkg/observability"
	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
	"github.com/Sumatoshi-tech/tidalflow/pkg/worker"
)

// recordBase offsets the synthetic record values so a record is never
// confused with an absent buffer slot even before tagging.
const recordBase = 21

// Options carries everything a run needs beyond the configuration.
type Options struct {
	Logger *slog.Logger
	// Metrics creates per-worker runtime metrics when non-nil.
	Metrics func(workerIndex int) (*observability.RuntimeMetrics, error)
	// NewDevice overrides the default simulator factory.
	NewDevice func(workerIndex int) (device.Device, error)
	// EventLogPath persists worker zero's scheduling trace when non-empty.
	EventLogPath string
}

// Run executes the benchmark described by cfg and returns worker zero's
// report.
func Run(cfg config.Config, opts Options) (*Report, error) {
	layout := device.Layout{
		DataChunks:     cfg.Device.DataChunks,
		OutputChunks:   cfg.Device.DataChunks,
		FrontierChunks: cfg.Device.FrontierChunks,
		Ghosts:         cfg.Bench.Operators,
	}

	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("bench: %w", err)
	}

	newDevice := opts.NewDevice
	if newDevice == nil {
		newDevice = func(int) (device.Device, error) {
			sim, err := device.NewSim(layout)
			if err != nil {
				return nil, err
			}

			return sim, nil
		}
	}

	var (
		mu     sync.Mutex
		report *Report
	)

	runErr := worker.Execute(worker.Config{
		Workers:       cfg.Runtime.Workers,
		Logger:        opts.Logger,
		CollectEvents: opts.EventLogPath != "",
		NewDevice:     newDevice,
		NewMetrics:    opts.Metrics,
	}, func(w *worker.Worker, dev device.Device) {
		result := runWorker(w, dev, cfg, layout)

		if w.Index() == 0 {
			mu.Lock()
			report = result
			mu.Unlock()

			if opts.EventLogPath != "" {
				writeEventLog(w, opts.EventLogPath, opts.Logger)
			}
		}
	})
	if runErr != nil {
		return nil, fmt.Errorf("bench: %w", runErr)
	}

	return report, nil
}

// runWorker drives one worker through every round.
func runWorker(w *worker.Worker, dev device.Device, cfg config.Config, layout device.Layout) *Report {
	probe := dataflow.NewProbe()

	var input *dataflow.InputHandle[uint64]

	w.Dataflow("offload-bench", func(scope *dataflow.Scope) {
		handle, stream := dataflow.NewInput[uint64](scope)
		input = handle

		offloaded := dataflow.Wrapper(stream, dev, dataflow.WrapperConfig{
			Operators: cfg.Bench.Operators,
			Layout:    layout,
		})

		dataflow.Probe(offloaded, probe)
	})

	batch := make([]uint64, cfg.Bench.Data)

	latencies := make([]int64, cfg.Bench.Rounds)
	started := time.Now()

	for round := 0; round < cfg.Bench.Rounds; round++ {
		epochStarted := time.Now()

		for i := range batch {
			batch[i] = uint64(round) + recordBase
		}

		input.SendBatch(batch)
		input.AdvanceTo(progress.Epoch(round) + 1)

		w.StepWhile(func() bool { return probe.LessThan(input.Time()) })

		latencies[round] = time.Since(epochStarted).Nanoseconds()
	}

	input.Close()
	w.StepWhile(func() bool { return !probe.Done() })

	return NewReport(cfg, time.Since(started).Nanoseconds(), latencies)
}

// writeEventLog flushes a worker's scheduling trace to disk.
func writeEventLog(w *worker.Worker, path string, logger *slog.Logger) {
	out, err := os.Create(path)
	if err != nil {
		if logger != nil {
			logger.Warn("event log create failed", "path", path, "error", err)
		}

		return
	}
	defer out.Close()

	if err := w.Events().WriteTo(out); err != nil && logger != nil {
		logger.Warn("event log write failed", "path", path, "error", err)
	}
}
