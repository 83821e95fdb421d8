package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/queryflow/internal/logging"
	"github.com/randalmurphal/queryflow/internal/service"
)

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	w, err := NewWriter(dir, nil, logging.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.Write("run-1", []byte(`{"run_id":"run-1","status":"succeeded"}`)))

	data, err := os.ReadFile(filepath.Join(dir, "run-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"status\": \"succeeded\"")

	require.NoError(t, w.Write("run-1", []byte(`{"run_id":"run-1","status":"empty"}`)))
	data, err = os.ReadFile(filepath.Join(dir, "run-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"empty"`)
}

func TestWriter_RejectsBadInput(t *testing.T) {
	w, err := NewWriter(t.TempDir(), nil, logging.NewNop())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		assert.ErrorIs(t, w.Write(id, []byte(`{}`)), ErrInvalidRunID, id)
	}
	assert.Error(t, w.Write("run-1", []byte("not json")))
}

func TestWriter_Start(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	dir := t.TempDir()

	w, err := NewWriter(dir, pubSub, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	for _, id := range []string{"run-a", "../bad", "run-b"} {
		msg := message.NewMessage(watermill.NewUUID(), []byte(`{"run_id":"`+id+`"}`))
		msg.Metadata.Set(service.MetadataRunID, id)
		require.NoError(t, pubSub.Publish(service.TopicRunCompleted, msg))
	}

	require.Eventually(t, func() bool {
		_, errA := os.Stat(filepath.Join(dir, "run-a.json"))
		_, errB := os.Stat(filepath.Join(dir, "run-b.json"))
		return errA == nil && errB == nil
	}, 5*time.Second, 10*time.Millisecond)

	var got map[string]any
	data, err := os.ReadFile(filepath.Join(dir, "run-b.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-b", got["run_id"])

	require.NoError(t, pubSub.Close())
	w.Wait()
}
