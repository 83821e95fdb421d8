package queryflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is the context handed to every external service call during a run.
// It extends context.Context with the run's logger and identity.
//
// Context is immutable. The run loop derives a fresh one per step, carrying
// the step name and a logger enriched with run_id, step and attempt.
type Context interface {
	context.Context

	// Logger returns the run logger. Never nil.
	Logger() *slog.Logger

	// RunID returns the identifier of the run. Auto-generated if not set.
	RunID() string

	// Step returns the step being executed, or "" outside a step.
	Step() Step

	// Attempt returns the 1-based generation attempt the step belongs to.
	Attempt() int
}

type executionContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	step    Step
	attempt int
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) Step() Step           { return c.step }
func (c *executionContext) Attempt() int         { return c.attempt }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the base logger for the context.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier used for logging and tracing.
// For checkpointing, pass WithRunID to Run instead.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext wraps ctx for use with Flow.Run.
//
//	ctx := queryflow.NewContext(context.Background(),
//	    queryflow.WithLogger(logger))
//	res, err := flow.Run(ctx, "top five customers by revenue")
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		attempt: 1,
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// forStep derives the context for one step. parent carries any tracing span
// started for the step.
func forStep(base Context, parent context.Context, runID string, step Step, attempt int) *executionContext {
	return &executionContext{
		Context: parent,
		logger:  base.Logger().With("run_id", runID, "step", string(step), "attempt", attempt),
		runID:   runID,
		step:    step,
		attempt: attempt,
	}
}
