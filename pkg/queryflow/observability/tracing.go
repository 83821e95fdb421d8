package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle for runs and steps.
type SpanManager interface {
	// StartRunSpan starts the span covering a whole run.
	StartRunSpan(ctx context.Context, runID string, maxRetries int) (context.Context, trace.Span)

	// StartStepSpan starts a child span for one step execution.
	StartStepSpan(ctx context.Context, step string, retryCount int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err when non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager backed by tp. A nil tp uses the
// global tracer provider at the time of the call.
func NewSpanManager(tp trace.TracerProvider) SpanManager {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &otelSpanManager{tracer: tp.Tracer(instrumentationName)}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, runID string, maxRetries int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "queryflow.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.max_retries", maxRetries),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartStepSpan(ctx context.Context, step string, retryCount int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "queryflow.step."+step,
		trace.WithAttributes(
			attribute.String("step.name", step),
			attribute.Int("run.retry_count", retryCount),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
