package bench

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tidalflow/internal/config"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Bench.Rounds = 20
	cfg.Bench.Data = 8
	cfg.Bench.Operators = 3
	cfg.Device.DataChunks = 4
	cfg.Device.FrontierChunks = 2

	return cfg
}

func TestRunProducesReport(t *testing.T) {
	cfg := smallConfig()

	report, err := Run(cfg, Options{})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, cfg.Bench.Rounds, report.Rounds)
	assert.Len(t, report.LatenciesNanos, cfg.Bench.Rounds)
	assert.Positive(t, report.TotalNanos)
	assert.Positive(t, report.EpochsPerSec)
	require.NotEmpty(t, report.Quantiles)

	for _, quantile := range report.Quantiles {
		assert.GreaterOrEqual(t, quantile.Nanos, int64(0))
	}
}

func TestRunMultiWorker(t *testing.T) {
	cfg := smallConfig()
	cfg.Runtime.Workers = 2
	cfg.Bench.Rounds = 5

	report, err := Run(cfg, Options{})
	require.NoError(t, err)
	require.NotNil(t, report, "worker zero reports")
	assert.Len(t, report.LatenciesNanos, cfg.Bench.Rounds)
}

func TestReportRoundTrip(t *testing.T) {
	cfg := smallConfig()
	report := NewReport(cfg, 1_000_000, []int64{100, 200, 300})

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.Write(path))

	loaded, err := ReadReport(path)
	require.NoError(t, err)

	assert.Equal(t, report.Rounds, loaded.Rounds)
	assert.Equal(t, report.LatenciesNanos, loaded.LatenciesNanos)
	assert.Equal(t, report.Quantiles, loaded.Quantiles)
}

func TestRejectsInvalidLayout(t *testing.T) {
	cfg := smallConfig()
	cfg.Bench.Operators = 40

	_, err := Run(cfg, Options{})
	assert.Error(t, err)
}
