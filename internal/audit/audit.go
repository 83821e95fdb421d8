// Package audit writes every completed run's result to a side-file,
// <dir>/<run_id>.json, from the run-completed message stream.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/renameio/v2"

	"github.com/randalmurphal/queryflow/internal/service"
)

// ErrInvalidRunID indicates a run id that cannot be used as a file name.
var ErrInvalidRunID = errors.New("invalid run id")

// Writer subscribes to run results and writes each one atomically.
type Writer struct {
	dir    string
	sub    message.Subscriber
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWriter creates a writer for dir, creating it if needed.
func NewWriter(dir string, sub message.Subscriber, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, sub: sub, logger: logger}, nil
}

// Start subscribes to service.TopicRunCompleted and writes results in the
// background until ctx is done or the subscriber closes.
func (w *Writer) Start(ctx context.Context) error {
	messages, err := w.sub.Subscribe(ctx, service.TopicRunCompleted)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range messages {
			runID := msg.Metadata.Get(service.MetadataRunID)
			if err := w.Write(runID, msg.Payload); err != nil {
				w.logger.Error("audit write failed", "run_id", runID, "error", err)
			}
			// A failed write would fail again on redelivery.
			msg.Ack()
		}
	}()
	return nil
}

// Wait blocks until the background writer stops.
func (w *Writer) Wait() {
	w.wg.Wait()
}

// Write stores payload as the audit file of runID.
func (w *Writer) Write(runID string, payload []byte) error {
	path, err := w.Path(runID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return fmt.Errorf("audit payload: %w", err)
	}
	buf.WriteByte('\n')

	return renameio.WriteFile(path, buf.Bytes(), 0o640)
}

// Path returns the audit file of runID.
func (w *Writer) Path(runID string) (string, error) {
	if runID == "" || runID == "." || runID == ".." ||
		strings.ContainsAny(runID, `/\`) || filepath.Base(runID) != runID {
		return "", fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return filepath.Join(w.dir, runID+".json"), nil
}
