// Package observability provides the logging, metrics and tracing hooks used
// by the queryflow orchestrator.
//
// Logging uses log/slog. Metrics and tracing use OpenTelemetry and both have
// no-op implementations for when they are disabled. Every logging helper
// accepts a nil logger.
package observability

import (
	"log/slog"
)

// EnrichLogger returns logger with run_id, step and attempt attached.
func EnrichLogger(logger *slog.Logger, runID, step string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("step", step),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, maxRetries int) {
	if logger == nil {
		return
	}
	logger.Info("query run starting",
		slog.String("run_id", runID),
		slog.Int("max_retries", maxRetries),
	)
}

// LogRunComplete logs a run that reached its terminal step.
func LogRunComplete(logger *slog.Logger, runID, status string, durationMs float64, steps, retries int) {
	if logger == nil {
		return
	}
	logger.Info("query run completed",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps_executed", steps),
		slog.Int("retry_count", retries),
	)
}

// LogRunError logs a run that ended with an error.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastStep string) {
	if logger == nil {
		return
	}
	logger.Error("query run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_step", lastStep),
	)
}

// LogStepStart logs step execution start.
func LogStepStart(logger *slog.Logger, step string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting", slog.String("step", step))
}

// LogStepComplete logs step completion and the event it emitted.
func LogStepComplete(logger *slog.Logger, step, event string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("step completed",
		slog.String("step", step),
		slog.String("event", event),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStepError logs a step failure.
func LogStepError(logger *slog.Logger, step string, err error) {
	if logger == nil {
		return
	}
	logger.Error("step failed",
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// LogQueryRejected logs a query the data store refused. The run continues.
func LogQueryRejected(logger *slog.Logger, retryCount int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("query rejected by data store",
		slog.Int("retry_count", retryCount),
		slog.String("error", err.Error()),
	)
}

// LogRouteDecision logs the outcome of a routing decision.
func LogRouteDecision(logger *slog.Logger, decision string, retryCount, maxRetries int, hasError bool) {
	if logger == nil {
		return
	}
	logger.Info("route decided",
		slog.String("decision", decision),
		slog.Int("retry_count", retryCount),
		slog.Int("max_retries", maxRetries),
		slog.Bool("has_error", hasError),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, step string, sequence, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("step", step),
		slog.Int("sequence", sequence),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a non-fatal checkpoint failure.
func LogCheckpointError(logger *slog.Logger, step, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("step", step),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
