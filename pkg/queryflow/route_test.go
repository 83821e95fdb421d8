package queryflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name       string
		policy     RetryPolicy
		max, count int
		hasError   bool
		want       Decision
	}{
		{"first success", CountEveryAttempt, 3, 0, false, Decision{EventSucceeded, 1}},
		{"first failure", CountEveryAttempt, 3, 0, true, Decision{EventRetryNeeded, 1}},
		{"second failure", CountEveryAttempt, 3, 1, true, Decision{EventRetryNeeded, 2}},
		{"failure takes last slot", CountEveryAttempt, 3, 2, true, Decision{EventBudgetExhausted, 3}},
		{"success takes last slot", CountEveryAttempt, 3, 2, false, Decision{EventSucceeded, 3}},
		{"budget already spent on success", CountEveryAttempt, 3, 3, false, Decision{EventBudgetExhausted, 3}},
		{"budget already spent on failure", CountEveryAttempt, 3, 3, true, Decision{EventBudgetExhausted, 3}},
		{"max one failure", CountEveryAttempt, 1, 0, true, Decision{EventBudgetExhausted, 1}},
		{"max one success", CountEveryAttempt, 1, 0, false, Decision{EventSucceeded, 1}},
		{"failures only success", CountFailuresOnly, 3, 0, false, Decision{EventSucceeded, 0}},
		{"failures only success after failure", CountFailuresOnly, 3, 2, false, Decision{EventSucceeded, 2}},
		{"failures only failure", CountFailuresOnly, 3, 2, true, Decision{EventBudgetExhausted, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Route(tt.policy, tt.max, tt.count, tt.hasError)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.RetryCount, max(tt.max, tt.count))
		})
	}
}

// TestRoute_Deterministic tests that identical inputs always produce the
// same decision.
func TestRoute_Deterministic(t *testing.T) {
	for _, policy := range []RetryPolicy{CountEveryAttempt, CountFailuresOnly} {
		for maxRetries := 1; maxRetries <= 5; maxRetries++ {
			for count := 0; count <= maxRetries; count++ {
				for _, hasError := range []bool{false, true} {
					first := Route(policy, maxRetries, count, hasError)
					for i := 0; i < 10; i++ {
						require.Equal(t, first, Route(policy, maxRetries, count, hasError))
					}
					_, err := Next(StepRoute, first.Event)
					require.NoError(t, err)
				}
			}
		}
	}
}

func TestRetryPolicy_Parse(t *testing.T) {
	p, err := ParseRetryPolicy("failures_only")
	require.NoError(t, err)
	assert.Equal(t, CountFailuresOnly, p)

	p, err = ParseRetryPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CountEveryAttempt, p)

	for _, policy := range []RetryPolicy{CountEveryAttempt, CountFailuresOnly} {
		parsed, err := ParseRetryPolicy(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, parsed)
	}

	_, err = ParseRetryPolicy("sometimes")
	assert.Error(t, err)
}
