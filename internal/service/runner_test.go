package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/randalmurphal/queryflow/internal/config"
	"github.com/randalmurphal/queryflow/internal/logging"
	"github.com/randalmurphal/queryflow/internal/service"
	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/schema"
	"github.com/randalmurphal/queryflow/pkg/queryflow/sqlexec"
)

const (
	goodReply      = `{"logical_plan": "sum amount by region", "query": "SELECT region, SUM(amount) AS total FROM sales GROUP BY region ORDER BY region"}`
	badReply       = `{"logical_plan": "read a missing column", "query": "SELECT nope FROM sales"}`
	diagnoseReply  = `{"error_type": "unknown column", "affected_columns": ["nope"]}`
	interpretReply = `{"summary": "East leads revenue.", "data": {"columns": ["region", "total"]}}`
)

// roleModel answers each prompt kind with a canned reply. Prompts that
// mention "broken" always get a query the store rejects.
type roleModel struct {
	calls atomic.Int32
	block bool
}

func (m *roleModel) Generate(ctx context.Context, input []*einoschema.Message, _ ...model.Option) (*einoschema.Message, error) {
	m.calls.Add(1)
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	system, user := input[0].Content, input[len(input)-1].Content
	switch {
	case strings.Contains(system, "senior data analyst"):
		if strings.Contains(user, "broken") {
			return einoschema.AssistantMessage(badReply, nil), nil
		}
		return einoschema.AssistantMessage(goodReply, nil), nil
	case strings.Contains(system, "diagnose SQL failures"):
		return einoschema.AssistantMessage(diagnoseReply, nil), nil
	default:
		return einoschema.AssistantMessage(interpretReply, nil), nil
	}
}

func (m *roleModel) Stream(context.Context, []*einoschema.Message, ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, errors.New("not supported")
}

func salesStore(t *testing.T) *sqlexec.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE sales (region TEXT, amount REAL);
		INSERT INTO sales VALUES ('east', 100.5), ('east', 20), ('west', 75.25);
	`)
	require.NoError(t, err)
	return sqlexec.NewDB(db)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Workflow: config.WorkflowConfig{
			MaxRetries:        3,
			RetryPolicy:       "every_attempt",
			InterpretRowLimit: 40,
			Timeout:           10 * time.Second,
		},
		Checkpoint: config.CheckpointConfig{Path: filepath.Join(t.TempDir(), "state", "checkpoints.db")},
	}
}

func newRunner(t *testing.T, cfg *config.Config, m model.BaseChatModel, opts ...service.Option) *service.Runner {
	t.Helper()
	r, err := service.Build(context.Background(), cfg, service.Dependencies{
		ChatModel: m,
		Store:     salesStore(t),
		Schema:    schema.StaticSource("Table sales: one row per order\n  - region (TEXT)\n  - amount (REAL)\n"),
		Logger:    logging.NewNop(),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunner_Run_Succeeded(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})
	ctx := context.Background()

	res, err := r.Run(ctx, service.Request{Prompt: "revenue by region", RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, queryflow.StatusSucceeded, res.Status)
	assert.Equal(t, "East leads revenue.", res.Summary)
	require.NotNil(t, res.Data)
	assert.Equal(t, []string{"region", "total"}, res.Data.Columns)
	require.Len(t, res.Data.Rows, 2)
	assert.Equal(t, "east", res.Data.Rows[0]["region"])
	assert.Equal(t, 1, res.RetryCount, "every attempt consumes a slot")

	infos, err := r.Checkpoints(ctx, "run-1")
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}

func TestRunner_Run_GeneratesRunID(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})

	res, err := r.Run(context.Background(), service.Request{Prompt: "revenue by region"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
}

func TestRunner_Run_MaxRetriesExceeded(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})

	res, err := r.Run(context.Background(), service.Request{Prompt: "broken report", MaxRetries: 2})
	require.NoError(t, err)

	assert.Equal(t, queryflow.StatusMaxRetriesExceeded, res.Status)
	assert.Equal(t, queryflow.MaxRetriesMessage, res.Summary)
	assert.Equal(t, 2, res.RetryCount)
	assert.Nil(t, res.Data)
}

func TestRunner_Run_EmptyPrompt(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})

	_, err := r.Run(context.Background(), service.Request{Prompt: "  "})
	assert.ErrorIs(t, err, queryflow.ErrEmptyPrompt)
}

func TestRunner_Run_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.Timeout = 50 * time.Millisecond
	r := newRunner(t, cfg, &roleModel{block: true})

	_, err := r.Run(context.Background(), service.Request{Prompt: "revenue by region"})

	var ce *queryflow.CancellationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 504, queryflow.StatusCode(err))
}

func TestRunner_PublishesResults(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, service.TopicRunCompleted)
	require.NoError(t, err)

	r := newRunner(t, testConfig(t), &roleModel{}, service.WithPublisher(pubSub))
	res, err := r.Run(ctx, service.Request{Prompt: "revenue by region", RunID: "run-pub"})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "run-pub", msg.Metadata.Get(service.MetadataRunID))
		assert.Equal(t, string(queryflow.StatusSucceeded), msg.Metadata.Get(service.MetadataStatus))

		var got queryflow.Result
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, res.Summary, got.Summary)
		assert.Len(t, got.Trace, len(res.Trace))
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("no run result published")
	}
}

func TestRunner_RunBatch(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})
	prompts := []string{"revenue by region", "broken report", "", "totals by region"}

	results := r.RunBatch(context.Background(), prompts, 2)
	require.Len(t, results, len(prompts))

	for i, br := range results {
		assert.Equal(t, i, br.Index)
		assert.Equal(t, prompts[i], br.Prompt)
	}
	assert.Equal(t, queryflow.StatusSucceeded, results[0].Result.Status)
	assert.Equal(t, queryflow.StatusMaxRetriesExceeded, results[1].Result.Status)
	assert.ErrorIs(t, results[2].Err, queryflow.ErrEmptyPrompt)
	assert.Nil(t, results[2].Result)
	assert.Equal(t, queryflow.StatusSucceeded, results[3].Result.Status)
}

func TestRunner_DistinctValues(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})

	values, err := r.DistinctValues(context.Background(), "sales", "region")
	require.NoError(t, err)
	assert.Equal(t, []any{"east", "west"}, values)

	_, err = r.DistinctValues(context.Background(), "sales; DROP TABLE sales", "region")
	assert.ErrorIs(t, err, sqlexec.ErrInvalidIdentifier)
}

func TestRunner_Resume_UnknownRun(t *testing.T) {
	r := newRunner(t, testConfig(t), &roleModel{})

	_, err := r.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, queryflow.ErrNoCheckpoints)
}

func TestRunner_CheckpointingDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Checkpoint.Path = ""
	r := newRunner(t, cfg, &roleModel{})

	_, err := r.Resume(context.Background(), "run-1")
	assert.ErrorIs(t, err, service.ErrCheckpointingDisabled)

	_, err = r.Checkpoints(context.Background(), "run-1")
	assert.ErrorIs(t, err, service.ErrCheckpointingDisabled)
}

func TestNew_InvalidRetryPolicy(t *testing.T) {
	flow, err := queryflow.New(queryflow.Services{
		Schema:      schema.StaticSource("s"),
		Generator:   queryflow.GeneratorFunc(nil),
		Executor:    queryflow.ExecutorFunc(nil),
		Diagnoser:   queryflow.DiagnoserFunc(nil),
		Interpreter: queryflow.InterpreterFunc(nil),
	})
	require.NoError(t, err)

	_, err = service.New(flow, config.WorkflowConfig{RetryPolicy: "sometimes"})
	assert.Error(t, err)
}

func TestBuild_UnsupportedProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Provider = "mystery"

	_, err := service.Build(context.Background(), cfg, service.Dependencies{Logger: logging.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat model")
}

func TestOpenDataStore_SQLite(t *testing.T) {
	store, err := service.OpenDataStore(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	defer store.Close()

	rs, err := store.Execute(context.Background(), "SELECT 1 AS one")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, rs.Columns)
}
