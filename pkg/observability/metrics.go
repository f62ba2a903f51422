package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricStepsTotal     = "tidalflow.worker.steps.total"
	metricDeviceCalls    = "tidalflow.device.calls.total"
	metricDeviceDuration = "tidalflow.device.call.duration.seconds"
	metricRecordsTotal   = "tidalflow.device.records.total"
	metricProgressSent   = "tidalflow.progress.updates.sent.total"

	attrWorker = "worker"
)

// deviceBucketBoundaries covers 1µs to 1s: a simulated device call is
// sub-microsecond while a real transfer over the fabric can take
// milliseconds.
var deviceBucketBoundaries = []float64{
	0.000001, 0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1,
}

// RuntimeMetrics holds the OTel instruments for one worker runtime. All
// recording methods are nil-safe: a nil receiver records nothing.
type RuntimeMetrics struct {
	worker int

	stepsTotal     metric.Int64Counter
	deviceCalls    metric.Int64Counter
	deviceDuration metric.Float64Histogram
	recordsTotal   metric.Int64Counter
	progressSent   metric.Int64Counter
}

// NewRuntimeMetrics creates the runtime instrument set from the given meter.
func NewRuntimeMetrics(mt metric.Meter, worker int) (*RuntimeMetrics, error) {
	steps, err := mt.Int64Counter(metricStepsTotal,
		metric.WithDescription("Total worker steps taken"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStepsTotal, err)
	}

	calls, err := mt.Int64Counter(metricDeviceCalls,
		metric.WithDescription("Total device invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDeviceCalls, err)
	}

	duration, err := mt.Float64Histogram(metricDeviceDuration,
		metric.WithDescription("Device invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(deviceBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDeviceDuration, err)
	}

	records, err := mt.Int64Counter(metricRecordsTotal,
		metric.WithDescription("Total records decoded from the device"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRecordsTotal, err)
	}

	progress, err := mt.Int64Counter(metricProgressSent,
		metric.WithDescription("Total pointstamp updates broadcast"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricProgressSent, err)
	}

	return &RuntimeMetrics{
		worker:         worker,
		stepsTotal:     steps,
		deviceCalls:    calls,
		deviceDuration: duration,
		recordsTotal:   records,
		progressSent:   progress,
	}, nil
}

func (rm *RuntimeMetrics) workerAttr() metric.MeasurementOption {
	return metric.WithAttributes(attribute.Int(attrWorker, rm.worker))
}

// RecordStep counts one worker step.
func (rm *RuntimeMetrics) RecordStep() {
	if rm == nil {
		return
	}

	rm.stepsTotal.Add(context.Background(), 1, rm.workerAttr())
}

// RecordDeviceCall counts one device invocation with its duration and the
// records it returned.
func (rm *RuntimeMetrics) RecordDeviceCall(duration time.Duration, records int) {
	if rm == nil {
		return
	}

	ctx := context.Background()
	rm.deviceCalls.Add(ctx, 1, rm.workerAttr())
	rm.deviceDuration.Record(ctx, duration.Seconds(), rm.workerAttr())
	rm.recordsTotal.Add(ctx, int64(records), rm.workerAttr())
}

// RecordProgressSent counts pointstamp updates handed to the progcaster.
func (rm *RuntimeMetrics) RecordProgressSent(updates int) {
	if rm == nil {
		return
	}

	rm.progressSent.Add(context.Background(), int64(updates), rm.workerAttr())
}
