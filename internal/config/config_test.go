package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "comunitarr", cfg.DatabaseName)
	assert.Equal(t, 30*time.Second, cfg.OutboxReplayInterval)
	assert.Contains(t, cfg.Neighborhoods, "serrallo")
	assert.True(t, cfg.ChatSim.Enabled)
	assert.Equal(t, 3, cfg.ChatSim.MaxBurst)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("COMUNITARR_ENV", "production")
	t.Setenv("COMUNITARR_NEIGHBORHOODS", "norte,sur")
	t.Setenv("COMUNITARR_CHATSIM_MAX_BURST", "0")
	t.Setenv("COMUNITARR_CHATSIM_MIN_DELAY", "1s")
	t.Setenv("COMUNITARR_CHATSIM_MAX_DELAY", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"norte", "sur"}, cfg.Neighborhoods)
	assert.Equal(t, 1, cfg.ChatSim.MaxBurst)
	assert.Equal(t, time.Second, cfg.ChatSim.MinDelay)
}

func TestLoadRejectsInvertedDelays(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("COMUNITARR_CHATSIM_MIN_DELAY", "5s")
	t.Setenv("COMUNITARR_CHATSIM_MAX_DELAY", "1s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadStoreBackend(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	t.Setenv("COMUNITARR_STORE_BACKEND", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreBackend)

	t.Setenv("COMUNITARR_STORE_BACKEND", "postgres")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsEmptyRateLimit(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	t.Setenv("COMUNITARR_RATE_LIMIT_REQUESTS", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("COMUNITARR_RATE_LIMIT_ENABLED", "false")
	_, err = Load()
	assert.NoError(t, err)
}
