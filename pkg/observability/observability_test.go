package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithMetrics(t *testing.T) {
	providers, err := Init(Config{Service: "test", Metrics: true, LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)

	require.NotNil(t, providers.Registry)
	require.NotNil(t, providers.Meter)

	metrics, err := NewRuntimeMetrics(providers.Meter, 0)
	require.NoError(t, err)

	metrics.RecordStep()
	metrics.RecordDeviceCall(time.Millisecond, 3)
	metrics.RecordProgressSent(7)

	families, err := providers.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "recorded instruments surface in the registry")

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitWithoutMetrics(t *testing.T) {
	providers, err := Init(Config{Service: "test", LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.Nil(t, providers.Registry)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestNilRuntimeMetricsAreInert(t *testing.T) {
	var metrics *RuntimeMetrics

	assert.NotPanics(t, func() {
		metrics.RecordStep()
		metrics.RecordDeviceCall(time.Second, 1)
		metrics.RecordProgressSent(2)
	})
}

func TestTracingHandlerAddsServiceAttrs(t *testing.T) {
	var buf bytes.Buffer

	base := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(NewTracingHandler(base, "tidalflow", "test"))

	logger.Info("hello")

	assert.Contains(t, buf.String(), `"service":"tidalflow"`)
	assert.Contains(t, buf.String(), `"env":"test"`)
}
