package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing DATABASE_URL fails", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
		assert.Equal(t, DefaultHTTPPort, cfg.HTTPPort)
		assert.NotEmpty(t, cfg.WorkdirRoot)
		assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
		assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
		assert.Equal(t, DefaultTaskTimeout, cfg.TaskTimeout)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
		t.Setenv("DATABASE_POOL_SIZE", "20")
		t.Setenv("WORKDIR_ROOT", "/srv/bridge")
		t.Setenv("HTTP_PORT", "9090")
		t.Setenv("WORKER_COUNT", "4")
		t.Setenv("QUEUE_POLL_INTERVAL", "10s")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.PoolSize)
		assert.Equal(t, "/srv/bridge", cfg.WorkdirRoot)
		assert.Equal(t, "9090", cfg.HTTPPort)
		assert.Equal(t, 4, cfg.WorkerCount)
		assert.Equal(t, 10*time.Second, cfg.PollInterval)
	})

	t.Run("invalid duration fails", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
		t.Setenv("QUEUE_POLL_INTERVAL", "soon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("invalid pool size fails", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
		t.Setenv("DATABASE_POOL_SIZE", "zero")
		_, err := Load()
		require.Error(t, err)
	})
}
