package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE", "")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://wrenchhub:wrenchhub_pass@db:5432/wrenchhub?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 15*time.Minute, cfg.RequestTTL)
	assert.Equal(t, time.Hour, cfg.WaitingTTL)
	assert.Equal(t, 2*time.Hour, cfg.LiveTTL)
	assert.Equal(t, 30*time.Second, cfg.PreviewInterval)
	assert.Equal(t, 10, cfg.RfqMaxBidsLimit)
	assert.Equal(t, 3, cfg.NotifyMaxAttempts)
	assert.True(t, cfg.ExpireRfqs)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x@y/z")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("REAPER_LIVE_TTL", "3h")
	t.Setenv("REAPER_EXPIRE_RFQS", "false")
	t.Setenv("RFQ_MAX_BIDS_LIMIT", "25")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://x@y/z", cfg.DatabaseURL)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 3*time.Hour, cfg.LiveTTL)
	assert.False(t, cfg.ExpireRfqs)
	assert.Equal(t, 25, cfg.RfqMaxBidsLimit)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_RejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "STORAGE")
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateServer())
	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.ValidateServer())
}
