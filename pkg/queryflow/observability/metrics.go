package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/randalmurphal/queryflow"

// MetricsRecorder records orchestrator metrics.
type MetricsRecorder interface {
	// RecordStepExecution records one step execution.
	RecordStepExecution(ctx context.Context, step string, duration time.Duration, err error)

	// RecordRun records a finished run. status is the terminal status, or
	// "error" when the run failed.
	RecordRun(ctx context.Context, status string, retries int, duration time.Duration)

	// RecordCheckpoint records a checkpoint save.
	RecordCheckpoint(ctx context.Context, step string, sizeBytes int64)
}

type otelMetrics struct {
	stepExecutions metric.Int64Counter
	stepLatency    metric.Float64Histogram
	stepErrors     metric.Int64Counter
	runCount       metric.Int64Counter
	runLatency     metric.Float64Histogram
	runRetries     metric.Int64Histogram
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     MetricsRecorder
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a recorder bound to the global meter provider.
// It is created once; if creation fails a no-op recorder is returned.
func DefaultMetrics() MetricsRecorder {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetricsRecorder(otel.GetMeterProvider())
		if err != nil {
			slog.Warn("metrics initialization failed, using no-op recorder",
				slog.String("error", err.Error()))
			defaultMetrics = NoopMetrics{}
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// NewMetricsRecorder creates a recorder whose instruments come from mp.
func NewMetricsRecorder(mp metric.MeterProvider) (MetricsRecorder, error) {
	meter := mp.Meter(instrumentationName)
	var (
		m   otelMetrics
		err error
	)

	if m.stepExecutions, err = meter.Int64Counter("queryflow.step.executions",
		metric.WithDescription("Number of step executions"),
	); err != nil {
		return nil, err
	}
	if m.stepLatency, err = meter.Float64Histogram("queryflow.step.latency_ms",
		metric.WithDescription("Step execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.stepErrors, err = meter.Int64Counter("queryflow.step.errors",
		metric.WithDescription("Number of step execution errors"),
	); err != nil {
		return nil, err
	}
	if m.runCount, err = meter.Int64Counter("queryflow.run.count",
		metric.WithDescription("Number of finished runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("queryflow.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.runRetries, err = meter.Int64Histogram("queryflow.run.retries",
		metric.WithDescription("Retry counter value at the end of a run"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("queryflow.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *otelMetrics) RecordStepExecution(ctx context.Context, step string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("step", step))
	m.stepExecutions.Add(ctx, 1, attrs)
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.stepErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, status string, retries int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runCount.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.runRetries.Record(ctx, int64(retries), attrs)
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, step string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("step", step)))
}
