// Package telemetry installs the OpenTelemetry providers used by runs.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/randalmurphal/queryflow/internal/config"
	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/observability"
)

// Telemetry holds the providers built from configuration.
type Telemetry struct {
	tp      *sdktrace.TracerProvider
	spans   observability.SpanManager
	metrics observability.MetricsRecorder
}

// Setup builds telemetry from cfg. Trace export is enabled when an endpoint
// is configured, in which case the tracer provider is also installed
// globally. Metrics use the global meter provider, so they reach whatever
// exporter the embedding process installs.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.Endpoint != "" {
		tp, err := newTracerProvider(ctx, cfg, version)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

		t.tp = tp
		t.spans = observability.NewSpanManager(tp)
	}

	if cfg.Metrics {
		t.metrics = observability.DefaultMetrics()
	}
	return t, nil
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, version string) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// TracingEnabled reports whether spans are exported.
func (t *Telemetry) TracingEnabled() bool {
	return t.tp != nil
}

// RunOptions returns the run options that attach this telemetry to a run.
func (t *Telemetry) RunOptions() []queryflow.RunOption {
	var opts []queryflow.RunOption
	if t.spans != nil {
		opts = append(opts, queryflow.WithTracing(t.spans))
	}
	if t.metrics != nil {
		opts = append(opts, queryflow.WithMetrics(t.metrics))
	}
	return opts
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	return nil
}
