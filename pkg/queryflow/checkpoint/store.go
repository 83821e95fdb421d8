// Package checkpoint persists per-step snapshots of a run so an interrupted
// run can be resumed from its last completed step.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists checkpoints. Implementations must be safe for concurrent use.
//
// Checkpoints form an append-only log per run, keyed by sequence number.
// A step that runs several times (generation is repeated on every retry)
// produces one entry per execution.
type Store interface {
	// Save stores the checkpoint for (runID, sequence), overwriting any
	// existing entry with the same key.
	Save(ctx context.Context, runID string, sequence int, step string, data []byte) error

	// Load retrieves the checkpoint at a sequence.
	// Returns ErrNotFound if it doesn't exist.
	Load(ctx context.Context, runID string, sequence int) ([]byte, error)

	// Latest retrieves the checkpoint with the highest sequence for a run.
	// Returns ErrNotFound if the run has none.
	Latest(ctx context.Context, runID string) ([]byte, error)

	// List returns checkpoint metadata for a run, ordered by sequence.
	// Returns an empty slice (not an error) if the run has no checkpoints.
	List(ctx context.Context, runID string) ([]Info, error)

	// DeleteRun removes all checkpoints for a run.
	DeleteRun(ctx context.Context, runID string) error

	// Close releases any resources.
	Close() error
}

// Info describes a stored checkpoint without its payload.
type Info struct {
	RunID     string    `json:"run_id"`
	Step      string    `json:"step"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
