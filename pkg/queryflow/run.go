package queryflow

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
	"github.com/randalmurphal/queryflow/pkg/queryflow/observability"
	"go.opentelemetry.io/otel/trace"
)

// Run executes the workflow for prompt and returns the terminal Result.
//
// A run that exhausts its retry budget is not an error: it returns a Result
// with StatusMaxRetriesExceeded. Errors are reserved for upstream service
// faults (*UpstreamError), cancellation (*CancellationError), panics
// (*PanicError) and broken invariants; in those cases the Result is nil.
//
//	res, err := flow.Run(ctx, "monthly revenue by region",
//	    queryflow.WithMaxRetries(5))
func (f *Flow) Run(ctx Context, prompt string, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	cfg := newRunConfig(opts)
	if cfg.checkpointStore != nil && cfg.runID == "" {
		return nil, ErrRunIDRequired
	}
	if cfg.runID == "" {
		cfg.runID = ctx.RunID()
	}

	return f.runFrom(ctx, newState(prompt), StepStart, EventNone, &cfg)
}

// runFrom drives the run from start until DONE, with run-level logging,
// metrics and tracing.
func (f *Flow) runFrom(ctx Context, state State, start Step, trigger Event, cfg *runConfig) (result *Result, runErr error) {
	startTime := time.Now()
	observability.LogRunStart(cfg.logger, cfg.runID, cfg.maxRetries)

	var execCtx context.Context = ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		execCtx, runSpan = cfg.spans.StartRunSpan(ctx, cfg.runID, cfg.maxRetries)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	state, steps, runErr := f.loop(execCtx, ctx, state, start, trigger, cfg)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	if runErr != nil {
		cfg.metrics.RecordRun(ctx, "error", state.RetryCount, duration)
		observability.LogRunError(cfg.logger, cfg.runID, runErr, durationMs, string(lastStep(runErr)))
		return nil, runErr
	}

	cfg.metrics.RecordRun(ctx, string(state.Status), state.RetryCount, duration)
	observability.LogRunComplete(cfg.logger, cfg.runID, string(state.Status), durationMs, steps, state.RetryCount)
	return buildResult(cfg.runID, state), nil
}

// loop executes steps until DONE or an error.
// tracingCtx carries the run span; base is the caller's Context.
func (f *Flow) loop(tracingCtx context.Context, base Context, state State, current Step, trigger Event, cfg *runConfig) (State, int, error) {
	steps := 0
	prev := Step("")

	for current != StepDone {
		if steps >= cfg.maxSteps {
			return state, steps, &MaxStepsError{Max: cfg.maxSteps, LastStep: current, State: state}
		}

		if err := base.Err(); err != nil {
			return state, steps, &CancellationError{Step: current, State: state, Cause: err}
		}

		observability.LogStepStart(cfg.logger, string(current))

		stepCtx := tracingCtx
		var stepSpan trace.Span
		if cfg.tracingEnabled {
			stepCtx, stepSpan = cfg.spans.StartStepSpan(tracingCtx, string(current), state.RetryCount)
		}

		attempt := state.Attempts
		if current == StepGenerate {
			attempt++
		}
		attempt = max(attempt, 1)

		begin := time.Now()
		next, ev, err := f.executeStep(forStep(base, stepCtx, cfg.runID, current, attempt), current, trigger, state, cfg)
		elapsed := time.Since(begin)

		cfg.metrics.RecordStepExecution(stepCtx, string(current), elapsed, err)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(stepSpan, err)
		}
		steps++

		if err != nil {
			observability.LogStepError(cfg.logger, string(current), err)
			return state, steps, err
		}
		state = next
		observability.LogStepComplete(cfg.logger, string(current), ev.String(), float64(elapsed.Milliseconds()))

		to, err := Next(current, ev)
		if err != nil {
			return state, steps, err
		}

		if cfg.checkpointStore != nil {
			if err := saveCheckpoint(base, cfg, current, prev, state, to, ev); err != nil {
				return state, steps, err
			}
		}

		prev, current, trigger = current, to, ev
	}

	return state, steps, nil
}

// executeStep runs one step with panic recovery and maps its error onto the
// run's error taxonomy.
func (f *Flow) executeStep(ctx *executionContext, step Step, trigger Event, state State, cfg *runConfig) (next State, ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, ev = state, EventNone
			err = &PanicError{Step: step, Value: r, Stack: string(debug.Stack())}
		}
	}()

	var fn func(*executionContext, State, Event, *runConfig) (State, Event, error)
	switch step {
	case StepStart:
		fn = f.start
	case StepGenerate:
		fn = f.generate
	case StepExecute:
		fn = f.execute
	case StepRoute:
		fn = f.route
	case StepAnalyzeError:
		fn = f.analyzeError
	case StepInterpret:
		fn = f.interpret
	case StepMaxRetriesExceeded:
		fn = f.maxRetriesExceeded
	default:
		return state, EventNone, &StepError{Step: step, Op: "lookup", Err: ErrInvalidResumeStep}
	}

	next, ev, err = fn(ctx, state, trigger, cfg)
	if err == nil {
		return next, ev, nil
	}

	if cause := ctx.Err(); cause != nil {
		return state, EventNone, &CancellationError{Step: step, State: state, Cause: cause, WasExecuting: true}
	}
	var ce *CancellationError
	if errors.As(err, &ce) {
		return state, EventNone, err
	}
	return state, EventNone, &StepError{Step: step, Op: "execute", Err: err}
}

func saveCheckpoint(ctx context.Context, cfg *runConfig, step, prev Step, state State, next Step, ev Event) error {
	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{Step: step, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, string(step), op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fail("serialize", err)
	}

	cfg.sequence++
	cp := checkpoint.New(cfg.runID, string(step), cfg.sequence, stateBytes, string(next), string(ev)).
		WithRetryCount(state.RetryCount).
		WithPrevStep(string(prev))

	data, err := cp.Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	if err := cfg.checkpointStore.Save(ctx, cfg.runID, cfg.sequence, string(step), data); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(cfg.logger, string(step), cfg.sequence, len(data))
	cfg.metrics.RecordCheckpoint(ctx, string(step), int64(len(data)))
	return nil
}

func lastStep(err error) Step {
	var (
		se *StepError
		pe *PanicError
		me *MaxStepsError
		ce *CancellationError
		te *TransitionError
		ke *CheckpointError
	)
	switch {
	case errors.As(err, &ce):
		return ce.Step
	case errors.As(err, &se):
		return se.Step
	case errors.As(err, &pe):
		return pe.Step
	case errors.As(err, &me):
		return me.LastStep
	case errors.As(err, &te):
		return te.From
	case errors.As(err, &ke):
		return ke.Step
	}
	return ""
}
