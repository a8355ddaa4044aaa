package storage_test

import (
	"context"
	"testing"

	"github.com/dhis2-sre/im-console/pkg/inttest"
	"github.com/dhis2-sre/im-console/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	client := inttest.SetupRedis(t)

	testStore(t, storage.NewRedisStore(client, "im-console:"))

	t.Run("Prefix", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, storage.NewRedisStore(client, "a:").Set(ctx, "auth_token", "A"))
		require.NoError(t, storage.NewRedisStore(client, "b:").Set(ctx, "auth_token", "B"))

		got, err := client.Get("a:auth_token").Result()
		require.NoError(t, err)
		assert.Equal(t, "A", got)
	})
}

func TestDatabaseStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Parallel()

	db := inttest.SetupDB(t)

	testStore(t, storage.NewDatabaseStore(db, "im-console:"))
}
