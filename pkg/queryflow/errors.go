package queryflow

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for construction and input validation.
var (
	// ErrNilContext indicates Run or Resume was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrEmptyPrompt indicates Run was called without a prompt.
	ErrEmptyPrompt = errors.New("user prompt cannot be empty")

	// ErrMissingService indicates New was given a nil collaborator.
	ErrMissingService = errors.New("missing service")
)

// Sentinel errors for execution.
var (
	// ErrMaxSteps indicates the run exceeded its step budget.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrUnknownTransition indicates a step emitted an event with no
	// transition.
	ErrUnknownTransition = errors.New("unknown transition")

	// ErrMalformedOutput indicates a service returned output the run
	// cannot use, such as empty query text.
	ErrMalformedOutput = errors.New("malformed service output")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrRunIDRequired indicates checkpointing was enabled without a run ID.
	ErrRunIDRequired = errors.New("run ID required for checkpointing")

	// ErrDeserializeState indicates a checkpoint could not be decoded.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoints indicates no checkpoints exist for the run.
	ErrNoCheckpoints = errors.New("no checkpoints found for run")

	// ErrInvalidResumeStep indicates a checkpoint names an unknown step.
	ErrInvalidResumeStep = errors.New("invalid resume step")

	// ErrCheckpointVersionMismatch indicates an incompatible checkpoint.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// QueryError reports a query the data store refused to run: bad syntax,
// unknown table or column, type mismatch. Executors return it for failures
// that a corrected query could avoid.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the driver error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// UpstreamError reports that an external service failed outright. The run
// stops without consuming a retry.
type UpstreamError struct {
	Step    Step
	Service string
	// StatusCode is the HTTP status the failure maps to. Defaults to 502.
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s service failed during %s (status %d): %s", e.Service, e.Step, e.StatusCode, e.Message)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// upstream wraps err as an *UpstreamError unless it already is one.
func upstream(step Step, service string, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		out := *ue
		if out.Step == "" {
			out.Step = step
		}
		if out.Service == "" {
			out.Service = service
		}
		if out.StatusCode == 0 {
			out.StatusCode = http.StatusBadGateway
		}
		return &out
	}
	return &UpstreamError{
		Step:       step,
		Service:    service,
		StatusCode: http.StatusBadGateway,
		Message:    err.Error(),
		Err:        err,
	}
}

// StepError wraps a failure with the step it happened in.
type StepError struct {
	Step Step
	Op   string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s: %v", e.Step, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside a step.
type PanicError struct {
	Step  Step
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("step %s panicked: %v", e.Step, e.Value)
}

// CancellationError reports that the run's context ended. State is the
// state at the point of cancellation.
type CancellationError struct {
	Step         Step
	State        State
	Cause        error
	WasExecuting bool
}

func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during step %s: %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("cancelled before step %s: %v", e.Step, e.Cause)
}

// Unwrap returns context.Canceled or context.DeadlineExceeded.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// MaxStepsError reports a run that exceeded its step budget.
type MaxStepsError struct {
	Max      int
	LastStep Step
	State    State
}

func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d), last step: %s", e.Max, e.LastStep)
}

// Unwrap returns ErrMaxSteps.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}

// CheckpointError wraps a failure to persist a checkpoint.
type CheckpointError struct {
	Step Step
	Op   string
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at step %s: %v", e.Op, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err is a query rejection the run absorbs.
func IsRecoverable(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// StatusCode maps a run error to an HTTP status for outer surfaces.
func StatusCode(err error) int {
	var (
		ue *UpstreamError
		ce *CancellationError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusGatewayTimeout
	case errors.As(err, &ue):
		return ue.StatusCode
	}
	return http.StatusInternalServerError
}
