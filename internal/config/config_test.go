package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marquee")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "./migrations", cfg.MigrationsPath)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 300*time.Second, cfg.OnlineThreshold)
	assert.Equal(t, 3*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "attach", cfg.BackgroundAudio)
	assert.Equal(t, time.UTC, cfg.Timezone)
	assert.False(t, cfg.EmptyDaysMatchAll)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marquee")
	t.Setenv("MARQUEE_TIMEZONE", "America/New_York")
	t.Setenv("MARQUEE_ONLINE_THRESHOLD", "120")
	t.Setenv("MARQUEE_SYNC_INTERVAL", "1m")
	t.Setenv("MARQUEE_EMPTY_DAYS_MATCH_ALL", "yes")
	t.Setenv("MARQUEE_BACKGROUND_AUDIO", "mute")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone.String())
	assert.Equal(t, 120*time.Second, cfg.OnlineThreshold)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.True(t, cfg.EmptyDaysMatchAll)
	assert.Equal(t, "mute", cfg.BackgroundAudio)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marquee")

	t.Setenv("MARQUEE_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)
	t.Setenv("MARQUEE_TIMEZONE", "UTC")

	t.Setenv("MARQUEE_BACKGROUND_AUDIO", "loud")
	_, err = Load()
	assert.Error(t, err)
	t.Setenv("MARQUEE_BACKGROUND_AUDIO", "attach")

	t.Setenv("MARQUEE_SYNC_RATE_PER_MIN", "0")
	_, err = Load()
	assert.Error(t, err)
	t.Setenv("MARQUEE_SYNC_RATE_PER_MIN", "30")

	t.Setenv("USE_SPACES", "true")
	_, err = Load()
	assert.Error(t, err)
}
