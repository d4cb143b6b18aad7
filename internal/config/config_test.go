package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classattend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "REQUEST_TIMEOUT", "FACE_MATCH_THRESHOLD", "TIMEZONE", "CODE_REGISTRY", "CHECKIN_RATE_LIMIT_PER_MIN"} {
		t.Setenv(k, "")
	}
	cfg := config.Load()
	require.Equal(t, "postgres", cfg.StoreBackend)
	require.Equal(t, "redis", cfg.CodeRegistry)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.InDelta(t, 0.45, cfg.FaceThreshold, 1e-9)
	require.Equal(t, time.UTC, cfg.Timezone)
	require.Equal(t, 6, cfg.CheckinRateLimitPerMin)
	require.False(t, cfg.CloudinaryConfigured())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("FACE_SKIP", "false")
	t.Setenv("FACE_MATCH_THRESHOLD", "0.6")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("TIMEZONE", "Asia/Kolkata")
	t.Setenv("APP_ENV", "prod")

	cfg := config.Load()
	require.Equal(t, "sqlite", cfg.StoreBackend)
	require.Equal(t, "memory", cfg.QueueBackend)
	require.Equal(t, 2*time.Second, cfg.RequestTimeout)
	require.False(t, cfg.FaceSkip)
	require.InDelta(t, 0.6, cfg.FaceThreshold, 1e-9)
	require.Equal(t, 30, cfg.RateLimitPerMin)
	require.Equal(t, "Asia/Kolkata", cfg.Timezone.String())
	require.True(t, cfg.Production())
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	cfg := config.Load()
	require.Equal(t, "postgres", cfg.StoreBackend)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, 120, cfg.RateLimitPerMin)
	require.Equal(t, time.UTC, cfg.Timezone)
}
