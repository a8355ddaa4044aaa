package storage_test

import (
	"context"
	"testing"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/pkg/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	testStore(t, storage.NewMemory())
}

func TestFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	testStore(t, storage.NewFile(fs, "/state/im-console.json"))

	t.Run("SharedDocument", func(t *testing.T) {
		ctx := context.Background()
		a := storage.NewFile(fs, "/shared/state.json")
		b := storage.NewFile(fs, "/shared/state.json")

		require.NoError(t, a.Set(ctx, "auth_token", "T1"))
		require.NoError(t, b.Set(ctx, "auth_token", "T2"))

		got, err := a.Get(ctx, "auth_token")
		require.NoError(t, err)
		assert.Equal(t, "T2", got, "want the last write to win")
	})

	t.Run("CorruptDocument", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/corrupt/state.json", []byte("{not json"), 0o600))

		_, err := storage.NewFile(fs, "/corrupt/state.json").Get(context.Background(), "key")

		require.Error(t, err)
		assert.False(t, errdef.IsNotFound(err))
	})
}

// testStore runs the behaviour every Store has to implement.
func testStore(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")

		require.Error(t, err)
		assert.True(t, errdef.IsNotFound(err))
	})

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k8s-connections", `[{"id":"1"}]`))

		got, err := store.Get(ctx, "k8s-connections")
		require.NoError(t, err)
		assert.Equal(t, `[{"id":"1"}]`, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "key", "first"))
		require.NoError(t, store.Set(ctx, "key", "second"))

		got, err := store.Get(ctx, "key")
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", "value"))
		require.NoError(t, store.Delete(ctx, "gone"))

		_, err := store.Get(ctx, "gone")
		assert.True(t, errdef.IsNotFound(err))
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-set"))
	})
}
