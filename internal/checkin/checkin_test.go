package checkin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
	"classattend/internal/checkin"
	"classattend/internal/clock"
	"classattend/internal/faceclient"
	"classattend/internal/geo"
	"classattend/internal/ledger"
	"classattend/internal/model"
	"classattend/internal/queue"
	"classattend/internal/session"
	"classattend/internal/store"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testFixture struct {
	clk     *clock.Fake
	store   *store.Memory
	mgr     *session.Manager
	svc     *checkin.Service
	session model.Session
}

func newFixture(t *testing.T) testFixture {
	t.Helper()
	clk := clock.NewFake(t0)
	st := store.NewMemory()
	mgr := session.NewManager(st, clk, store.NewMemoryCodes(clk))
	s, err := mgr.Create(context.Background(), session.CreateParams{
		InstructorID: "inst-1",
		ClassID:      "cls-1",
		ClassName:    "Physics",
		Duration:     30,
		Geofence:     geo.Geofence{Lat: 10, Lon: 20, Radius: 50},
	})
	require.NoError(t, err)
	svc := checkin.NewService(mgr, ledger.New(st, clk), clk, 0.45)
	return testFixture{clk: clk, store: st, mgr: mgr, svc: svc, session: s}
}

func score(v float64) *float64 { return &v }

func TestProcess(t *testing.T) {
	inside := geo.Point{Lat: 10.0003, Lon: 20}
	outside := geo.Point{Lat: 10.001, Lon: 20}

	cases := []struct {
		name    string
		attempt func(s model.Session) checkin.Attempt
		advance time.Duration
		wantErr string
	}{
		{"accepted by id", func(s model.Session) checkin.Attempt {
			return checkin.Attempt{SessionID: s.ID, StudentID: "stu-1", Location: inside, FaceMatchScore: score(0.9)}
		}, 0, ""},
		{"accepted by code", func(s model.Session) checkin.Attempt {
			return checkin.Attempt{SessionCode: s.SessionCode, StudentID: "stu-1", Location: inside}
		}, 0, ""},
		{"outside geofence", func(s model.Session) checkin.Attempt {
			return checkin.Attempt{SessionID: s.ID, StudentID: "stu-1", Location: outside, FaceMatchScore: score(0.9)}
		}, 0, checkin.CodeOutsideGeofence},
		{"face mismatch", func(s model.Session) checkin.Attempt {
			return checkin.Attempt{SessionID: s.ID, StudentID: "stu-1", Location: inside, FaceMatchScore: score(0.2)}
		}, 0, checkin.CodeFaceMismatch},
		{"face service down", func(s model.Session) checkin.Attempt {
			return checkin.Attempt{SessionID: s.ID, StudentID: "stu-1", Location: inside, FaceError: "timeout"}
		}, 0, checkin.CodeFaceUnavailable},
		{"expired session", func(s model.Session) checkin.Attempt {
			return checkin.Attempt{SessionID: s.ID, StudentID: "stu-1", Location: inside}
		}, 31 * time.Minute, checkin.CodeSessionClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.clk.Advance(tc.advance)
			out, err := f.svc.Process(context.Background(), tc.attempt(f.session))
			require.NoError(t, err)

			recs, err := f.store.ListRecords(context.Background(), f.session.ID)
			require.NoError(t, err)
			if tc.wantErr == "" {
				require.True(t, out.Accepted)
				require.Nil(t, out.Snapshot)
				require.Len(t, recs, 1)
				require.Equal(t, model.StatusPresent, recs[0].Status)
				return
			}
			require.False(t, out.Accepted)
			require.Equal(t, tc.wantErr, out.Error)
			require.NotNil(t, out.Snapshot)
			require.Equal(t, tc.wantErr, out.Snapshot.Error)
			require.NotNil(t, out.Snapshot.DistanceMeters)
			require.Empty(t, recs)
		})
	}
}

func TestProcessEndedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.End(ctx, f.session.ID, "inst-1")
	require.NoError(t, err)

	out, err := f.svc.Process(ctx, checkin.Attempt{SessionID: f.session.ID, StudentID: "stu-1", Location: geo.Point{Lat: 10, Lon: 20}})
	require.NoError(t, err)
	require.Equal(t, checkin.CodeSessionClosed, out.Error)

	_, err = f.svc.Process(ctx, checkin.Attempt{SessionCode: f.session.SessionCode, StudentID: "stu-1", Location: geo.Point{Lat: 10, Lon: 20}})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProcessInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Process(ctx, checkin.Attempt{SessionID: f.session.ID, Location: geo.Point{}})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.Process(ctx, checkin.Attempt{StudentID: "stu-1"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.Process(ctx, checkin.Attempt{SessionID: "nope", StudentID: "stu-1"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

type fakeFace struct {
	similarity float64
	err        error
}

func (f fakeFace) Verify(_ context.Context, userID, imageURL string) (*faceclient.VerifyResult, error) {
	if imageURL == "" {
		return nil, faceclient.ErrNoImage
	}
	if f.err != nil {
		return nil, f.err
	}
	return &faceclient.VerifyResult{UserID: userID, Similarity: f.similarity}, nil
}

func TestWorker(t *testing.T) {
	const image = "https://cdn.example.com/face.jpg"
	cases := []struct {
		name  string
		face  fakeFace
		image string
		want  string
	}{
		{"verified", fakeFace{similarity: 0.8}, image, ""},
		{"low similarity", fakeFace{similarity: 0.1}, image, checkin.CodeFaceMismatch},
		{"verifier error", fakeFace{err: errors.New("boom")}, image, checkin.CodeFaceUnavailable},
		{"no image", fakeFace{similarity: 0.8}, "", checkin.CodeFaceMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			q := queue.NewInMemory(4)
			results := checkin.NewMemoryResults()
			w := &checkin.Worker{Queue: q, Service: f.svc, Face: tc.face, Results: results, Timeout: time.Second}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				_ = w.Run(ctx)
				close(done)
			}()

			require.NoError(t, checkin.Enqueue(ctx, q, checkin.Attempt{
				ID: "a1", SessionID: f.session.ID, StudentID: "stu-1",
				Location: geo.Point{Lat: 10, Lon: 20}, ImageURL: tc.image,
			}))

			var out checkin.Outcome
			require.Eventually(t, func() bool {
				var err error
				out, err = results.Get(context.Background(), "a1")
				return err == nil
			}, 2*time.Second, 10*time.Millisecond)
			cancel()
			<-done

			require.Equal(t, tc.want, out.Error)
			require.Equal(t, tc.want == "", out.Accepted)

			recs, err := f.store.ListRecords(context.Background(), f.session.ID)
			require.NoError(t, err)
			if tc.want == "" {
				require.Len(t, recs, 1)
			} else {
				require.Empty(t, recs)
			}
		})
	}
}

// downStore fails every session read as a transient outage.
type downStore struct {
	store.Store
	reads atomic.Int32
}

func (d *downStore) GetSession(_ context.Context, id string) (model.Session, error) {
	d.reads.Add(1)
	return model.Session{}, apperr.E("store.get_session", id, apperr.ErrStoreUnavailable)
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	clk := clock.NewFake(t0)
	st := &downStore{Store: store.NewMemory()}
	svc := checkin.NewService(session.NewManager(st, clk, nil), ledger.New(st, clk), clk, 0.45)
	q := queue.NewInMemory(4)
	results := checkin.NewMemoryResults()
	w := &checkin.Worker{Queue: q, Service: svc, Results: results, Timeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.NoError(t, checkin.Enqueue(ctx, q, checkin.Attempt{
		ID: "a1", SessionID: "s1", StudentID: "stu-1", Location: geo.Point{Lat: 10, Lon: 20},
	}))

	var out checkin.Outcome
	require.Eventually(t, func() bool {
		var err error
		out, err = results.Get(context.Background(), "a1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, checkin.CodeStoreUnavailable, out.Error)
	require.False(t, out.Accepted)
	require.Equal(t, "stu-1", out.StudentID)
	require.EqualValues(t, checkin.MaxRetries+1, st.reads.Load())
}

func TestMemoryResultsMissing(t *testing.T) {
	_, err := checkin.NewMemoryResults().Get(context.Background(), "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
