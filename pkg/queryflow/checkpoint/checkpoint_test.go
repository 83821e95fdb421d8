package checkpoint_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_New(t *testing.T) {
	state := []byte(`{"user_prompt":"top customers"}`)
	cp := checkpoint.New("run-123", "generate", 2, state, "execute", "generated")

	assert.Equal(t, checkpoint.Version, cp.Version)
	assert.Equal(t, "run-123", cp.RunID)
	assert.Equal(t, "generate", cp.Step)
	assert.Equal(t, 2, cp.Sequence)
	assert.Equal(t, "execute", cp.NextStep)
	assert.Equal(t, "generated", cp.Trigger)
	assert.Equal(t, json.RawMessage(state), cp.State)
	assert.Zero(t, cp.RetryCount)
	assert.Empty(t, cp.PrevStep)
	assert.False(t, cp.Timestamp.IsZero())
}

func TestCheckpoint_MarshalUnmarshal(t *testing.T) {
	original := checkpoint.New("run-123", "route", 5, []byte(`{"retry_count":2}`), "analyze_error", "retry_needed").
		WithRetryCount(2).
		WithPrevStep("execute")

	data, err := original.Marshal()
	require.NoError(t, err)

	loaded, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.Version, loaded.Version)
	assert.Equal(t, original.RunID, loaded.RunID)
	assert.Equal(t, original.Step, loaded.Step)
	assert.Equal(t, original.Sequence, loaded.Sequence)
	assert.Equal(t, original.NextStep, loaded.NextStep)
	assert.Equal(t, original.Trigger, loaded.Trigger)
	assert.Equal(t, 2, loaded.RetryCount)
	assert.Equal(t, "execute", loaded.PrevStep)
	assert.JSONEq(t, string(original.State), string(loaded.State))
	assert.WithinDuration(t, original.Timestamp, loaded.Timestamp, time.Second)
}

func TestCheckpoint_UnmarshalInvalidJSON(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestCheckpoint_JSONFormat(t *testing.T) {
	cp := checkpoint.New("run-1", "start", 1, []byte(`{"value":42}`), "generate", "initial_load")

	data, err := cp.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{"version", "run_id", "step", "sequence", "timestamp", "state", "next_step", "trigger", "retry_count"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "prev_step")
}
