package checkpoint_test

import (
	"context"
	"testing"

	"github.com/randalmurphal/queryflow/pkg/queryflow/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) checkpoint.Store

// storeContractTest runs the same behavioural checks against any Store.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		data := []byte(`{"key": "value"}`)
		require.NoError(t, store.Save(ctx, "run-1", 1, "start", data))

		loaded, err := store.Load(ctx, "run-1", 1)
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load(ctx, "run-missing", 1)
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "run-1", 1, "start", []byte("first")))
		require.NoError(t, store.Save(ctx, "run-1", 1, "start", []byte("second")))

		loaded, err := store.Load(ctx, "run-1", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), loaded)
	})

	t.Run(name+"/Latest", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "run-1", 1, "start", []byte("a")))
		require.NoError(t, store.Save(ctx, "run-1", 3, "execute", []byte("c")))
		require.NoError(t, store.Save(ctx, "run-1", 2, "generate", []byte("b")))
		require.NoError(t, store.Save(ctx, "run-2", 9, "start", []byte("other")))

		latest, err := store.Latest(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("c"), latest)
	})

	t.Run(name+"/Latest_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Latest(ctx, "run-missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		infos, err := store.List(ctx, "run-missing")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run(name+"/List_Ordered", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "run-1", 2, "generate", []byte("bb")))
		require.NoError(t, store.Save(ctx, "run-1", 1, "start", []byte("a")))
		require.NoError(t, store.Save(ctx, "run-1", 3, "generate", []byte("ccc")))

		infos, err := store.List(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, infos, 3)

		assert.Equal(t, 1, infos[0].Sequence)
		assert.Equal(t, "start", infos[0].Step)
		assert.Equal(t, int64(1), infos[0].Size)
		assert.Equal(t, 2, infos[1].Sequence)
		assert.Equal(t, 3, infos[2].Sequence)
		assert.Equal(t, "generate", infos[2].Step)
		assert.Equal(t, int64(3), infos[2].Size)
		assert.Equal(t, "run-1", infos[2].RunID)
		assert.False(t, infos[2].Timestamp.IsZero())
	})

	t.Run(name+"/DeleteRun", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, "run-1", 1, "start", []byte("a")))
		require.NoError(t, store.Save(ctx, "run-2", 1, "start", []byte("b")))
		require.NoError(t, store.DeleteRun(ctx, "run-1"))

		infos, err := store.List(ctx, "run-1")
		require.NoError(t, err)
		assert.Empty(t, infos)

		_, err = store.Load(ctx, "run-2", 1)
		assert.NoError(t, err)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save(ctx, "run-1", 1, "start", []byte("a")), checkpoint.ErrStoreClosed)
		_, err := store.Load(ctx, "run-1", 1)
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
		_, err = store.Latest(ctx, "run-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
		_, err = store.List(ctx, "run-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
		assert.ErrorIs(t, store.DeleteRun(ctx, "run-1"), checkpoint.ErrStoreClosed)
	})
}

// TestMemoryStore runs contract tests against MemoryStore.
func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

// TestSQLiteStore runs contract tests against SQLiteStore.
func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}
