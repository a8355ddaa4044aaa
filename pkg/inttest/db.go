package inttest

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dhis2-sre/im-console/pkg/config"
	"github.com/dhis2-sre/im-console/pkg/storage"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupDB starts PostgreSQL and returns a Gorm connection with the key/value table migrated.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()

	container, err := gnomock.Start(
		postgres.Preset(
			postgres.WithUser("console", "console"),
			postgres.WithDatabase("test_console"),
		),
	)
	require.NoError(t, err, "failed to start DB")
	t.Cleanup(func() { require.NoError(t, gnomock.Stop(container), "failed to stop DB") })

	db, err := storage.NewDatabase(slog.New(slog.NewTextHandler(io.Discard, nil)), config.Postgresql{
		Host:         container.Host,
		Port:         container.DefaultPort(),
		Username:     "console",
		Password:     "console",
		DatabaseName: "test_console",
	})
	require.NoError(t, err, "failed to setup DB")
	return db
}
