package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cloudwego/eino/components/model"

	"github.com/randalmurphal/queryflow/internal/config"
	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
	"github.com/randalmurphal/queryflow/pkg/queryflow/llm"
	"github.com/randalmurphal/queryflow/pkg/queryflow/schema"
	"github.com/randalmurphal/queryflow/pkg/queryflow/sqlexec"
)

// DataStore is an executor that can also list column values.
type DataStore interface {
	queryflow.Executor
	DistinctLookup
	io.Closer
}

// Dependencies overrides the collaborators Build would otherwise create
// from configuration. Nil fields are built from config.
type Dependencies struct {
	ChatModel model.BaseChatModel
	Store     DataStore
	Schema    queryflow.SchemaSource
	Logger    *slog.Logger
}

// Build creates a Runner from configuration: the chat model, the data store,
// the schema file and, when enabled, the checkpoint store. Close the runner
// to release them.
func Build(ctx context.Context, cfg *config.Config, deps Dependencies, opts ...Option) (_ *Runner, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	chat := deps.ChatModel
	if chat == nil {
		if chat, err = llm.NewChatModel(ctx, cfg.Model); err != nil {
			return nil, fmt.Errorf("chat model: %w", err)
		}
	}

	store := deps.Store
	if store == nil {
		if store, err = OpenDataStore(ctx, cfg.Database); err != nil {
			return nil, err
		}
		closers = append(closers, store)
	}

	src := deps.Schema
	if src == nil {
		src = schema.NewFileSource(cfg.Schema.Path)
	}

	roleOpts := []llm.Option{llm.WithLogger(logger)}
	flow, err := queryflow.New(queryflow.Services{
		Schema:      src,
		Generator:   llm.NewGenerator(chat, roleOpts...),
		Executor:    store,
		Diagnoser:   llm.NewDiagnoser(chat, roleOpts...),
		Interpreter: llm.NewInterpreter(chat, roleOpts...),
	})
	if err != nil {
		return nil, err
	}

	all := []Option{WithLogger(logger), WithDistinctLookup(store)}
	if cfg.Checkpoint.Enabled() {
		cps, cerr := OpenCheckpointStore(cfg.Checkpoint.Path)
		if cerr != nil {
			return nil, cerr
		}
		closers = append(closers, cps)
		all = append(all, WithCheckpointStore(cps))
	}
	for _, c := range closers {
		all = append(all, WithCloser(c))
	}

	return New(flow, cfg.Workflow, append(all, opts...)...)
}

// OpenDataStore connects to the configured data store.
func OpenDataStore(ctx context.Context, cfg config.DatabaseConfig) (DataStore, error) {
	opts := []sqlexec.Option{sqlexec.WithMaxRows(cfg.MaxRows)}

	switch cfg.Driver {
	case config.DriverPGX:
		pool, err := sqlexec.NewPool(ctx, cfg.DSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("data store: %w", err)
		}
		return pool, nil
	default:
		db, err := sqlexec.Open(cfg.Driver, cfg.DSN, opts...)
		if err != nil {
			return nil, fmt.Errorf("data store: %w", err)
		}
		return db, nil
	}
}

// OpenCheckpointStore opens the SQLite checkpoint store at path, creating
// its directory if needed.
func OpenCheckpointStore(path string) (*checkpoint.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("checkpoint dir: %w", err)
		}
	}
	store, err := checkpoint.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	return store, nil
}
