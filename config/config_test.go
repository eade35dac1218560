package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, 200, cfg.MaxUploadSizeMB)
	assert.Equal(t, 2, cfg.AsyncWorkers)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, 1000, cfg.QueueCapacity)
	assert.Equal(t, 2, cfg.SyncSlots)
	assert.Equal(t, time.Duration(0), cfg.SyncWait)
	assert.Equal(t, 24*time.Hour, cfg.JobTTL)
	assert.Equal(t, 30*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 10*time.Minute, cfg.ConvertTimeout)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_DIR", "/srv/convertd")
	t.Setenv("ASYNC_WORKERS", "8")
	t.Setenv("SYNC_WAIT_TIMEOUT_MS", "250")
	t.Setenv("JOB_TTL_HOURS", "1")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/srv/convertd", cfg.DataDir)
	assert.Equal(t, 8, cfg.AsyncWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncWait)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsZeroWorkers(t *testing.T) {
	t.Setenv("ASYNC_WORKERS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsZeroQueue(t *testing.T) {
	t.Setenv("QUEUE_CAPACITY", "0")

	_, err := Load()
	assert.Error(t, err)
}
