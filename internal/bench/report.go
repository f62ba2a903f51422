package bench

import (
	"encoding/json"
	"fmt"
	"os"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/Sumatoshi-tech/tidalflow/internal/config"
)

// histogramSigfigs is the value precision kept by the latency histogram.
const histogramSigfigs = 3

// maxLatencyNanos bounds the recordable epoch latency at 100 seconds.
const maxLatencyNanos = int64(100_000_000_000)

// reportQuantiles are the percentiles summarized for display.
var reportQuantiles = []float64{50, 90, 99, 99.9, 100}

// Quantile is one summarized latency percentile.
type Quantile struct {
	Percentile float64 `json:"percentile"`
	Nanos      int64   `json:"nanos"`
}

// Report is the benchmark result for one worker.
type Report struct {
	Rounds    int `json:"rounds"`
	Data      int `json:"data"`
	Operators int `json:"operators"`
	Workers   int `json:"workers"`

	TotalNanos     int64   `json:"total_nanos"`
	EpochsPerSec   float64 `json:"epochs_per_sec"`
	LatenciesNanos []int64 `json:"latencies_nanos"`

	Quantiles []Quantile `json:"quantiles"`
}

// NewReport summarizes a run's latencies.
func NewReport(cfg config.Config, totalNanos int64, latencies []int64) *Report {
	hist := hdrhistogram.New(1, maxLatencyNanos, histogramSigfigs)

	for _, latency := range latencies {
		// Out-of-range samples saturate rather than abort the report.
		if err := hist.RecordValue(min(latency, maxLatencyNanos)); err != nil {
			continue
		}
	}

	quantiles := make([]Quantile, 0, len(reportQuantiles))
	for _, q := range reportQuantiles {
		quantiles = append(quantiles, Quantile{Percentile: q, Nanos: hist.ValueAtQuantile(q)})
	}

	epochsPerSec := 0.0
	if totalNanos > 0 {
		epochsPerSec = float64(len(latencies)) / (float64(totalNanos) / 1e9)
	}

	return &Report{
		Rounds:         cfg.Bench.Rounds,
		Data:           cfg.Bench.Data,
		Operators:      cfg.Bench.Operators,
		Workers:        cfg.Runtime.Workers,
		TotalNanos:     totalNanos,
		EpochsPerSec:   epochsPerSec,
		LatenciesNanos: latencies,
		Quantiles:      quantiles,
	}
}

// Write persists the report as JSON.
func (r *Report) Write(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("bench: encode report: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("bench: write report: %w", err)
	}

	return nil
}

// ReadReport loads a report written by Write.
func ReadReport(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bench: read report: %w", err)
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("bench: decode report: %w", err)
	}

	return &report, nil
}
