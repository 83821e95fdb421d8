package queryflow

import (
	"fmt"
	"strings"
)

// RetryPolicy decides which routing decisions consume a retry slot.
type RetryPolicy int

const (
	// CountEveryAttempt increments the retry counter on every routing
	// decision that has budget left, successful or not.
	CountEveryAttempt RetryPolicy = iota

	// CountFailuresOnly increments the retry counter only when the latest
	// execution failed.
	CountFailuresOnly
)

func (p RetryPolicy) String() string {
	switch p {
	case CountEveryAttempt:
		return "every_attempt"
	case CountFailuresOnly:
		return "failures_only"
	}
	return fmt.Sprintf("RetryPolicy(%d)", int(p))
}

// ParseRetryPolicy parses the String form of a policy.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "every_attempt":
		return CountEveryAttempt, nil
	case "failures_only":
		return CountFailuresOnly, nil
	}
	return 0, fmt.Errorf("unknown retry policy %q", s)
}

// Decision is the outcome of a routing decision.
type Decision struct {
	// Event selects the next step.
	Event Event
	// RetryCount is the counter value after the decision.
	RetryCount int
}

// Route decides where a run goes after an execution.
//
// A counter already at maxRetries ends the run. Otherwise the counter is
// incremented once (policy permitting), and a failure that brings it to
// maxRetries also ends the run, so no generation happens once the budget is
// spent. Remaining failures go to diagnosis and successes to interpretation.
func Route(policy RetryPolicy, maxRetries, retryCount int, hasError bool) Decision {
	if retryCount >= maxRetries {
		return Decision{Event: EventBudgetExhausted, RetryCount: retryCount}
	}

	if hasError || policy == CountEveryAttempt {
		retryCount++
	}

	switch {
	case hasError && retryCount >= maxRetries:
		return Decision{Event: EventBudgetExhausted, RetryCount: retryCount}
	case hasError:
		return Decision{Event: EventRetryNeeded, RetryCount: retryCount}
	default:
		return Decision{Event: EventSucceeded, RetryCount: retryCount}
	}
}
