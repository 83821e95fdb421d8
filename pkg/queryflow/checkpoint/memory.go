package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. Data is lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[int]entry // runID -> sequence -> entry
	closed bool
}

type entry struct {
	step      string
	data      []byte
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[int]entry)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, runID string, sequence int, step string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.runs[runID] == nil {
		m.runs[runID] = make(map[int]entry)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	m.runs[runID][sequence] = entry{step: step, data: stored, timestamp: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, runID string, sequence int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.runs[runID][sequence]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.data), nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, runID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	best, found := 0, false
	for seq := range m.runs[runID] {
		if !found || seq > best {
			best, found = seq, true
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	return clone(m.runs[runID][best].data), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	run := m.runs[runID]
	infos := make([]Info, 0, len(run))
	for seq, e := range run {
		infos = append(infos, Info{
			RunID:     runID,
			Step:      e.step,
			Sequence:  seq,
			Timestamp: e.timestamp,
			Size:      int64(len(e.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Sequence < infos[j].Sequence })
	return infos, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the number of checkpoints across all runs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, run := range m.runs {
		n += len(run)
	}
	return n
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
