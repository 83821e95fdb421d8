package queryflow

import "fmt"

// Step names a node of the workflow.
type Step string

// Workflow steps.
const (
	StepStart              Step = "start"
	StepGenerate           Step = "generate"
	StepExecute            Step = "execute"
	StepRoute              Step = "route"
	StepAnalyzeError       Step = "analyze_error"
	StepInterpret          Step = "interpret"
	StepMaxRetriesExceeded Step = "max_retries_exceeded"
	StepDone               Step = "done"
)

// Event is emitted by a completed step and selects the next one.
type Event string

// Step events. GENERATE is entered by either EventInitialLoad or
// EventErrorRecovered and records which one fired it.
const (
	EventNone            Event = ""
	EventInitialLoad     Event = "initial_load"
	EventErrorRecovered  Event = "error_recovered"
	EventGenerated       Event = "generated"
	EventExecuted        Event = "executed"
	EventRetryNeeded     Event = "retry_needed"
	EventSucceeded       Event = "succeeded"
	EventBudgetExhausted Event = "budget_exhausted"
	EventInterpreted     Event = "interpreted"
	EventFailureReported Event = "failure_reported"
)

var transitions = map[Step]map[Event]Step{
	StepStart:              {EventInitialLoad: StepGenerate},
	StepGenerate:           {EventGenerated: StepExecute},
	StepExecute:            {EventExecuted: StepRoute},
	StepRoute:              {EventRetryNeeded: StepAnalyzeError, EventSucceeded: StepInterpret, EventBudgetExhausted: StepMaxRetriesExceeded},
	StepAnalyzeError:       {EventErrorRecovered: StepGenerate},
	StepInterpret:          {EventInterpreted: StepDone},
	StepMaxRetriesExceeded: {EventFailureReported: StepDone},
}

// Next returns the step that follows from when it emits ev.
// It depends only on its arguments.
func Next(from Step, ev Event) (Step, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", &TransitionError{From: from, Event: ev}
}

// Known reports whether s is a step of the workflow.
func (s Step) Known() bool {
	_, ok := transitions[s]
	return ok || s == StepDone
}

func (s Step) String() string { return string(s) }

func (e Event) String() string {
	if e == EventNone {
		return "none"
	}
	return string(e)
}

// TransitionError reports an event that has no transition from a step.
type TransitionError struct {
	From  Step
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from step %s on event %s", e.From, e.Event)
}

// Unwrap returns ErrUnknownTransition.
func (e *TransitionError) Unwrap() error {
	return ErrUnknownTransition
}
