package queryflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// Resume continues a checkpointed run from its latest checkpoint.
//
// The run continues with the step and trigger recorded in the checkpoint,
// saving further checkpoints to the same store. Options such as
// WithMaxRetries must match the original run; WithRunID and
// WithCheckpointing are set from the arguments.
//
//	// The process died while diagnosing; pick up where it stopped.
//	res, err := flow.Resume(ctx, store, "run-123")
func (f *Flow) Resume(ctx Context, store checkpoint.Store, runID string, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if runID == "" {
		return nil, ErrRunIDRequired
	}

	data, err := store.Latest(ctx, runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}
	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	state, err := decodeState(cp.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	next := Step(cp.NextStep)
	if !next.Known() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResumeStep, cp.NextStep)
	}

	cfg := newRunConfig(opts)
	cfg.checkpointStore = store
	cfg.runID = runID
	cfg.sequence = cp.Sequence

	return f.runFrom(ctx, state, next, Event(cp.Trigger), &cfg)
}

// decodeState restores checkpointed state. Numbers are decoded as
// json.Number and renormalized so integers outside the float64 range come
// back exact.
func decodeState(data []byte) (State, error) {
	var state State
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&state); err != nil {
		return State{}, err
	}

	if state.QueryResults != nil {
		restored, err := rows.NormalizeAll(state.QueryResults, nil)
		if err != nil {
			return State{}, fmt.Errorf("query results: %w", err)
		}
		state.QueryResults = restored
	}
	for i, entry := range state.Trace {
		if entry.Payload == nil {
			continue
		}
		payload, err := rows.Normalize(entry.Payload, "")
		if err != nil {
			return State{}, fmt.Errorf("trace entry %d: %w", i, err)
		}
		state.Trace[i].Payload = payload.(map[string]any)
	}
	return state, nil
}
