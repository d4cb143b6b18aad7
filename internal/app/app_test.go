package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classattend/internal/app"
	"classattend/internal/config"
	"classattend/internal/geo"
	"classattend/internal/session"
)

func TestNewMemoryBackends(t *testing.T) {
	cfg := config.App{
		LogLevel:      "debug",
		StoreBackend:  "memory",
		QueueBackend:  "memory",
		CodeRegistry:  "memory",
		FaceSkip:      true,
		FaceThreshold: 0.45,
		Timezone:      time.UTC,
	}
	app.ConfigureLogging(cfg, "test")

	ctx := context.Background()
	svc, err := app.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.Close()) })
	require.Nil(t, svc.Redis)

	s, err := svc.Sessions.Create(ctx, session.CreateParams{
		InstructorID: "inst-1",
		ClassID:      "cs101",
		ClassName:    "Chemistry",
		Duration:     30,
		Geofence:     geo.Geofence{Lat: 1, Lon: 1, Radius: 50},
	})
	require.NoError(t, err)

	got, err := svc.Sessions.ResolveCode(ctx, s.SessionCode)
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)

	w := svc.Worker()
	require.NotNil(t, w.Face)
	require.Same(t, svc.Checkins, w.Service)
}

func TestNewSQLite(t *testing.T) {
	cfg := config.App{
		StoreBackend: "sqlite",
		SQLitePath:   ":memory:",
		QueueBackend: "memory",
		CodeRegistry: "none",
		Timezone:     time.UTC,
	}
	svc, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Store.Ping(context.Background()))
	require.NoError(t, svc.Close())
}
