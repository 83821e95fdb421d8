// Package service wires a Flow to its configuration and runs queries for
// the outer surfaces (CLI, HTTP API, MCP).
package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/randalmurphal/queryflow/internal/config"
	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
)

// TopicRunCompleted carries every terminal Result as JSON.
const TopicRunCompleted = "queryflow.run.completed"

// Message metadata keys.
const (
	MetadataRunID  = "run_id"
	MetadataStatus = "status"
)

var (
	// ErrCheckpointingDisabled indicates an operation that needs the
	// checkpoint store when none is configured.
	ErrCheckpointingDisabled = errors.New("checkpointing is disabled")

	// ErrNoDistinctLookup indicates the data store cannot list values.
	ErrNoDistinctLookup = errors.New("data store does not support distinct values")
)

// DistinctLookup lists the distinct values of a column.
type DistinctLookup interface {
	DistinctValues(ctx context.Context, table, column string) ([]any, error)
}

// Request is one query run.
type Request struct {
	Prompt string
	// MaxRetries overrides the configured retry budget when positive.
	MaxRetries int
	// RunID is generated when empty.
	RunID string
}

// Runner runs queries through a Flow with the configured run options.
// It is safe for concurrent use.
type Runner struct {
	flow     *queryflow.Flow
	workflow config.WorkflowConfig
	policy   queryflow.RetryPolicy

	store     checkpoint.Store
	distinct  DistinctLookup
	publisher message.Publisher
	logger    *slog.Logger
	runOpts   []queryflow.RunOption
	closers   []io.Closer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for runs and the runner itself.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublisher publishes every terminal Result on TopicRunCompleted.
func WithPublisher(pub message.Publisher) Option {
	return func(r *Runner) {
		r.publisher = pub
	}
}

// WithCheckpointStore checkpoints every run to store.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithDistinctLookup enables DistinctValues.
func WithDistinctLookup(d DistinctLookup) Option {
	return func(r *Runner) {
		r.distinct = d
	}
}

// WithRunOptions appends options to every run, e.g. telemetry.
func WithRunOptions(opts ...queryflow.RunOption) Option {
	return func(r *Runner) {
		r.runOpts = append(r.runOpts, opts...)
	}
}

// WithCloser registers a resource released by Close.
func WithCloser(c io.Closer) Option {
	return func(r *Runner) {
		if c != nil {
			r.closers = append(r.closers, c)
		}
	}
}

// New creates a Runner for flow.
func New(flow *queryflow.Flow, wf config.WorkflowConfig, opts ...Option) (*Runner, error) {
	if flow == nil {
		return nil, errors.New("flow is required")
	}
	policy, err := queryflow.ParseRetryPolicy(wf.RetryPolicy)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		flow:     flow,
		workflow: wf,
		policy:   policy,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one query. When a run timeout is configured the run is
// cancelled after it and returns a *queryflow.CancellationError.
func (r *Runner) Run(ctx context.Context, req Request) (*queryflow.Result, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	if r.workflow.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.workflow.Timeout)
		defer cancel()
	}

	qctx := queryflow.NewContext(ctx,
		queryflow.WithLogger(r.logger),
		queryflow.WithContextRunID(runID))

	res, err := r.flow.Run(qctx, req.Prompt, r.runOptions(runID, req.MaxRetries)...)
	if err != nil {
		return nil, err
	}
	r.publish(res)
	return res, nil
}

// Resume continues a checkpointed run.
func (r *Runner) Resume(ctx context.Context, runID string) (*queryflow.Result, error) {
	if r.store == nil {
		return nil, ErrCheckpointingDisabled
	}
	if r.workflow.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.workflow.Timeout)
		defer cancel()
	}

	qctx := queryflow.NewContext(ctx,
		queryflow.WithLogger(r.logger),
		queryflow.WithContextRunID(runID))

	res, err := r.flow.Resume(qctx, r.store, runID, r.runOptions("", 0)...)
	if err != nil {
		return nil, err
	}
	r.publish(res)
	return res, nil
}

// Checkpoints lists the stored checkpoints of a run.
func (r *Runner) Checkpoints(ctx context.Context, runID string) ([]checkpoint.Info, error) {
	if r.store == nil {
		return nil, ErrCheckpointingDisabled
	}
	return r.store.List(ctx, runID)
}

// DistinctValues lists the distinct values of a column in the data store.
func (r *Runner) DistinctValues(ctx context.Context, table, column string) ([]any, error) {
	if r.distinct == nil {
		return nil, ErrNoDistinctLookup
	}
	return r.distinct.DistinctValues(ctx, table, column)
}

// Close releases the resources registered with the runner, in reverse
// order of registration.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runner) runOptions(runID string, maxRetries int) []queryflow.RunOption {
	if maxRetries <= 0 {
		maxRetries = r.workflow.MaxRetries
	}
	opts := []queryflow.RunOption{
		queryflow.WithMaxRetries(maxRetries),
		queryflow.WithRetryPolicy(r.policy),
		queryflow.WithInterpretRowLimit(r.workflow.InterpretRowLimit),
		queryflow.WithMaxSteps(r.workflow.MaxSteps),
		queryflow.WithObservabilityLogger(r.logger),
	}
	if r.store != nil && runID != "" {
		opts = append(opts,
			queryflow.WithCheckpointing(r.store),
			queryflow.WithRunID(runID))
	}
	return append(opts, r.runOpts...)
}

// publish announces a terminal result. Failures are logged; the run has
// already completed.
func (r *Runner) publish(res *queryflow.Result) {
	if r.publisher == nil {
		return
	}

	payload, err := json.Marshal(res)
	if err != nil {
		r.logger.Warn("encode run result", "run_id", res.RunID, "error", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataRunID, res.RunID)
	msg.Metadata.Set(MetadataStatus, string(res.Status))

	if err := r.publisher.Publish(TopicRunCompleted, msg); err != nil {
		r.logger.Warn("publish run result", "run_id", res.RunID, "error", err)
	}
}
