package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classattend/internal/analytics"
	"classattend/internal/apperr"
	"classattend/internal/clock"
	"classattend/internal/model"
	"classattend/internal/store"
)

func seed(t *testing.T, st store.Store, sr model.SessionRecords) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, sr.Session))
	for _, r := range sr.Records {
		r.Timestamp = sr.Session.StartTime
		require.NoError(t, st.UpsertRecord(ctx, r))
	}
}

func TestServiceSnapshot(t *testing.T) {
	st := store.NewMemory()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, st, sessionAt("s1", "Physics", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), 8, 2))
	seed(t, st, sessionAt("s2", "Physics", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), 4, 1))
	seed(t, st, sessionAt("s3", "Maths", time.Date(2024, 3, 8, 14, 0, 0, 0, time.UTC), 1, 1))

	svc := analytics.NewService(st, clock.NewFake(now), time.UTC)
	snap, err := svc.Snapshot(context.Background(), analytics.Window{InstructorID: "inst-1"})
	require.NoError(t, err)
	require.Equal(t, 3, snap.Overview.TotalSessions)
	require.Len(t, snap.Trend, 3)
	require.Len(t, snap.Classes, 2)
	require.Equal(t, "Physics", snap.Classes[0].ClassName)
	require.Len(t, snap.Hours, 2)

	t.Run("class filter", func(t *testing.T) {
		snap, err := svc.Snapshot(context.Background(), analytics.Window{InstructorID: "inst-1", ClassID: "Maths"})
		require.NoError(t, err)
		require.Equal(t, 1, snap.Overview.TotalSessions)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		snap, err := svc.Snapshot(context.Background(), analytics.Window{
			InstructorID: "inst-1",
			DateFrom:     time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			DateTo:       time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Equal(t, 2, snap.Overview.TotalSessions)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := svc.Snapshot(context.Background(), analytics.Window{
			InstructorID: "inst-1",
			DateFrom:     time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
			DateTo:       time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		})
		require.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("other instructor sees nothing", func(t *testing.T) {
		snap, err := svc.Snapshot(context.Background(), analytics.Window{InstructorID: "inst-2"})
		require.NoError(t, err)
		require.Zero(t, snap.Overview.TotalSessions)
		require.Empty(t, snap.Trend)
	})
}

func TestServiceHistory(t *testing.T) {
	st := store.NewMemory()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		class := "Physics"
		if i%5 == 0 {
			class = "Maths"
		}
		seed(t, st, sessionAt(fmt.Sprintf("s%02d", i), class, base.Add(time.Duration(i)*time.Hour), 1, 1))
	}
	live := sessionAt("live", "Chemistry", base.Add(30*time.Hour), 2, 0)
	live.Session.Active = true
	live.Session.SessionCode = "CHE1234"
	seed(t, st, live)

	now := base.Add(30*time.Hour + 10*time.Minute)
	svc := analytics.NewService(st, clock.NewFake(now), time.UTC)
	ctx := context.Background()

	page, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}})
	require.NoError(t, err)
	require.Equal(t, 26, page.TotalRows)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Rows, analytics.DefaultPageSize)
	require.Equal(t, "live", page.Rows[0].Session.ID)
	require.True(t, page.Rows[0].Open)
	require.InDelta(t, 100.0, page.Rows[0].Rate, 1e-9)

	last, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}, Page: 3})
	require.NoError(t, err)
	require.Len(t, last.Rows, 6)

	beyond, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}, Page: 9})
	require.NoError(t, err)
	require.Empty(t, beyond.Rows)

	active, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}, Status: "active"})
	require.NoError(t, err)
	require.Equal(t, 1, active.TotalRows)

	completed, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}, Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, 25, completed.TotalRows)

	byCode, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}, Search: "che12"})
	require.NoError(t, err)
	require.Equal(t, 1, byCode.TotalRows)

	byClass, err := svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1", ClassID: "Maths"}})
	require.NoError(t, err)
	require.Equal(t, 5, byClass.TotalRows)

	_, err = svc.History(ctx, analytics.HistoryQuery{Window: analytics.Window{InstructorID: "inst-1"}, Status: "done"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}
