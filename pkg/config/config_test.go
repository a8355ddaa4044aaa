package config_test

import (
	"testing"
	"time"

	"github.com/dhis2-sre/im-console/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestProvideConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "")
		t.Setenv("STORAGE_BACKEND", "")
		t.Setenv("STATE_DIR", "/tmp/im-console")

		cfg := config.ProvideConfig()

		assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
		assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
		assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
		assert.Equal(t, config.StorageFile, cfg.StorageBackend)
		assert.Equal(t, "/tmp/im-console", cfg.StateDir)
		assert.False(t, cfg.LogPretty)
	})

	t.Run("Redis", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "redis")
		t.Setenv("REDIS_HOST", "redis.local")
		t.Setenv("REDIS_PORT", "6379")
		t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")

		cfg := config.ProvideConfig()

		assert.Equal(t, config.StorageRedis, cfg.StorageBackend)
		assert.Equal(t, "redis.local", cfg.Redis.Host)
		assert.Equal(t, 6379, cfg.Redis.Port)
		assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	})
}

func TestPostgresqlDSN(t *testing.T) {
	p := config.Postgresql{Host: "db", Port: 5432, Username: "im", Password: "secret", DatabaseName: "console"}

	assert.Equal(t, "host=db user=im password=secret dbname=console port=5432 sslmode=disable", p.DSN())
}
