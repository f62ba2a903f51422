package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "tidalflow"
	meterName  = "tidalflow"
)

// Config selects what the observability stack does.
type Config struct {
	// Service is the service.name resource attribute.
	Service string
	// Env is attached to every log record when non-empty.
	Env string
	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level
	// LogJSON selects JSON log output instead of text.
	LogJSON bool
	// LogWriter receives log output; defaults to stderr.
	LogWriter io.Writer
	// Metrics enables the Prometheus-exported meter provider. When false
	// the meter is a functional in-process meter with no exposition.
	Metrics bool
}

// DefaultConfig returns the stack configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		Service:  "tidalflow",
		LogLevel: slog.LevelInfo,
		Metrics:  true,
	}
}

// Providers holds the initialized observability providers.
type Providers struct {
	// Tracer is the named tracer for creating spans.
	Tracer trace.Tracer

	// Meter is the named meter for creating instruments.
	Meter metric.Meter

	// Logger is the context-aware structured logger.
	Logger *slog.Logger

	// Registry is the Prometheus registry the meter exports into; nil when
	// metrics are disabled.
	Registry *promclient.Registry

	// Shutdown flushes pending telemetry. Must be called before exit.
	Shutdown func(ctx context.Context) error
}

// Init initializes tracing, metrics, and structured logging.
func Init(cfg Config) (Providers, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.Service),
	))
	if err != nil {
		return Providers{}, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	var registry *promclient.Registry

	meterOptions := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Metrics {
		registry = promclient.NewRegistry()

		exporter, exporterErr := otelprom.New(otelprom.WithRegisterer(registry))
		if exporterErr != nil {
			return Providers{}, fmt.Errorf("build prometheus exporter: %w", exporterErr)
		}

		meterOptions = append(meterOptions, sdkmetric.WithReader(exporter))
	}

	mp := sdkmetric.NewMeterProvider(meterOptions...)

	logger := buildLogger(cfg)

	shutdown := func(ctx context.Context) error {
		traceErr := tp.Shutdown(ctx)

		meterErr := mp.Shutdown(ctx)
		if meterErr != nil {
			return fmt.Errorf("shut down meter provider: %w", meterErr)
		}

		if traceErr != nil {
			return fmt.Errorf("shut down tracer provider: %w", traceErr)
		}

		return nil
	}

	return Providers{
		Tracer:   tp.Tracer(tracerName),
		Meter:    mp.Meter(meterName),
		Logger:   logger,
		Registry: registry,
		Shutdown: shutdown,
	}, nil
}

// buildLogger assembles the slog pipeline: base handler, then trace-context
// injection.
func buildLogger(cfg Config) *slog.Logger {
	writer := cfg.LogWriter
	if writer == nil {
		writer = os.Stderr
	}

	options := &slog.HandlerOptions{Level: cfg.LogLevel}

	var base slog.Handler
	if cfg.LogJSON {
		base = slog.NewJSONHandler(writer, options)
	} else {
		base = slog.NewTextHandler(writer, options)
	}

	return slog.New(NewTracingHandler(base, cfg.Service, cfg.Env))
}
