package queryflow

import "fmt"

// OutcomeKind classifies the result of one external service call.
type OutcomeKind int

const (
	// OutcomeSuccess carries a usable value.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeEmpty means the service answered but returned nothing.
	OutcomeEmpty
	// OutcomeRejected means the data store refused the query. The run
	// records it and may retry.
	OutcomeRejected
	// OutcomeFault means the service itself failed. The run stops.
	OutcomeFault
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFault:
		return "fault"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the classified result of a service call.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// Success wraps a usable value.
func Success[T any](v T) Outcome[T] { return Outcome[T]{Kind: OutcomeSuccess, Value: v} }

// Empty marks a call that returned nothing.
func Empty[T any]() Outcome[T] { return Outcome[T]{Kind: OutcomeEmpty} }

// Rejected marks a recoverable rejection.
func Rejected[T any](err error) Outcome[T] { return Outcome[T]{Kind: OutcomeRejected, Err: err} }

// Fault marks a fatal service failure.
func Fault[T any](err error) Outcome[T] { return Outcome[T]{Kind: OutcomeFault, Err: err} }
