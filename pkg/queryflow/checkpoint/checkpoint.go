package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to the structure.
const Version = 1

// Checkpoint is the persisted snapshot taken after a step completes.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Step      string    `json:"step"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// State is the JSON-encoded workflow state after Step.
	State json.RawMessage `json:"state"`

	// NextStep and Trigger are where execution continues: the step to run
	// next and the event that selected it.
	NextStep string `json:"next_step"`
	Trigger  string `json:"trigger"`

	RetryCount int    `json:"retry_count"`
	PrevStep   string `json:"prev_step,omitempty"`
}

// New creates a checkpoint. State must already be JSON-encoded.
func New(runID, step string, sequence int, state []byte, nextStep, trigger string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		Step:      step,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextStep:  nextStep,
		Trigger:   trigger,
	}
}

// WithRetryCount records the retry counter at the time of the snapshot.
func (c *Checkpoint) WithRetryCount(n int) *Checkpoint {
	c.RetryCount = n
	return c
}

// WithPrevStep records the step that ran before this one.
func (c *Checkpoint) WithPrevStep(step string) *Checkpoint {
	c.PrevStep = step
	return c
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
