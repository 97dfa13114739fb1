package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
	assert.Equal(t, "networth", cfg.Database.Postgres.Database)
	assert.Equal(t, 50, cfg.Database.Postgres.MaxConnections)

	assert.Equal(t, 4, cfg.Queue.NativeConcurrency)
	assert.Equal(t, 4, cfg.Queue.ERC20Concurrency)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Queue.BackoffMax)
	assert.Equal(t, 2*time.Minute, cfg.Queue.VisibilityTimeout)

	assert.Equal(t, "usd", cfg.Oracle.FiatCurrency)
	assert.Equal(t, time.Minute, cfg.Oracle.FiatCacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.Snapshot.Interval)

	assert.Equal(t, 50, cfg.RateLimit.APIRequestsPerSecond)
	assert.Zero(t, cfg.RateLimit.ChainRequestsPerSec)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "3")
	t.Setenv("QUEUE_BACKOFF_BASE", "500ms")
	t.Setenv("SNAPSHOT_INTERVAL", "1h")
	t.Setenv("RATE_LIMIT_CHAIN_RPS", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.BackoffBase)
	assert.Equal(t, time.Hour, cfg.Snapshot.Interval)
	assert.Equal(t, 10, cfg.RateLimit.ChainRequestsPerSec)
}

func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "lots")
	t.Setenv("QUEUE_VISIBILITY_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Queue.VisibilityTimeout)
}
