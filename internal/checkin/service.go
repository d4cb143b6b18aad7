package checkin

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/clock"
	"classattend/internal/geo"
	"classattend/internal/ledger"
	"classattend/internal/metrics"
	"classattend/internal/model"
	"classattend/internal/session"
)

// Failure codes carried on rejected attempts and copied into exception requests.
const (
	CodeSessionClosed   = "session_closed"
	CodeOutsideGeofence = "outside_geofence"
	CodeFaceMismatch    = "face_mismatch"
	CodeFaceUnavailable = "face_unavailable"
	CodeFaceMissing     = "face_missing"
	CodeInvalidAttempt  = "invalid_attempt"

	// CodeStoreUnavailable means the attempt could not be judged; the student may retry.
	CodeStoreUnavailable = "store_unavailable"
)

// Attempt is a student's reported check-in. The device supplies the location;
// the face score comes from the face service.
type Attempt struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId,omitempty"`
	SessionCode    string    `json:"sessionCode,omitempty"`
	StudentID      string    `json:"studentId"`
	Location       geo.Point `json:"location"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	FaceMatchScore *float64  `json:"faceMatchScore,omitempty"`
	ReceivedAt     time.Time `json:"receivedAt"`
	// FaceError is set by the worker when face verification itself failed.
	FaceError string `json:"faceError,omitempty"`
	// Retries counts re-queues after transient store failures.
	Retries int `json:"retries,omitempty"`
}

// Outcome is the verdict on one attempt.
type Outcome struct {
	AttemptID      string                  `json:"attemptId"`
	SessionID      string                  `json:"sessionId"`
	StudentID      string                  `json:"studentId"`
	Accepted       bool                    `json:"accepted"`
	Error          string                  `json:"error,omitempty"`
	DistanceMeters float64                 `json:"distanceMeters"`
	Record         *model.AttendanceRecord `json:"record,omitempty"`
	// Snapshot is present on rejected attempts for use in an exception request.
	Snapshot *model.Attempt `json:"snapshot,omitempty"`
}

// Service judges attempts against the session window and geofence and writes
// accepted ones to the ledger.
type Service struct {
	sessions  *session.Manager
	ledger    *ledger.Ledger
	clock     clock.Clock
	threshold float64
}

// NewService builds a check-in service. Face scores below threshold are rejected.
func NewService(sessions *session.Manager, l *ledger.Ledger, clk clock.Clock, threshold float64) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{sessions: sessions, ledger: l, clock: clk, threshold: threshold}
}

// Process evaluates a. Verification failures are reported in the Outcome, not
// as errors; errors mean the attempt could not be judged at all.
func (s *Service) Process(ctx context.Context, a Attempt) (Outcome, error) {
	const op = "checkin.process"
	if a.StudentID == "" {
		return Outcome{}, apperr.Invalid(op, "student id required")
	}
	if !geo.ValidCoordinates(a.Location) {
		return Outcome{}, apperr.Invalid(op, "location out of range")
	}

	sess, err := s.resolve(ctx, a)
	if err != nil {
		return Outcome{}, err
	}
	at := a.ReceivedAt
	if at.IsZero() {
		at = s.clock.Now()
	}

	out := Outcome{
		AttemptID:      a.ID,
		SessionID:      sess.ID,
		StudentID:      a.StudentID,
		DistanceMeters: geo.Distance(a.Location, sess.Geofence.Center()),
	}
	switch {
	case !sess.IsOpen(at):
		out.Error = CodeSessionClosed
	case !geo.IsWithin(a.Location, sess.Geofence):
		out.Error = CodeOutsideGeofence
	case a.FaceError == CodeFaceMissing:
		out.Error = CodeFaceMissing
	case a.FaceError != "":
		out.Error = CodeFaceUnavailable
	case a.FaceMatchScore != nil && *a.FaceMatchScore < s.threshold:
		out.Error = CodeFaceMismatch
	}

	if out.Error != "" {
		dist := out.DistanceMeters
		out.Snapshot = &model.Attempt{
			Timestamp:      at.UTC(),
			Location:       a.Location,
			FaceMatchScore: a.FaceMatchScore,
			Error:          out.Error,
			DistanceMeters: &dist,
		}
		metrics.Checkins.WithLabelValues(out.Error).Inc()
		log.Info().Str("session_id", sess.ID).Str("student_id", a.StudentID).Str("reason", out.Error).
			Float64("distance_m", out.DistanceMeters).Msg("check-in rejected")
		return out, nil
	}

	rec, err := s.ledger.Record(ctx, sess.ID, a.StudentID, model.StatusPresent, a.Location, a.FaceMatchScore)
	if err != nil {
		return Outcome{}, apperr.E(op, a.ID, err)
	}
	out.Accepted = true
	out.Record = &rec
	metrics.Checkins.WithLabelValues("accepted").Inc()
	log.Info().Str("session_id", sess.ID).Str("student_id", a.StudentID).Msg("check-in accepted")
	return out, nil
}

func (s *Service) resolve(ctx context.Context, a Attempt) (model.Session, error) {
	switch {
	case a.SessionID != "":
		return s.sessions.Lookup(ctx, a.SessionID)
	case a.SessionCode != "":
		return s.sessions.ResolveCode(ctx, a.SessionCode)
	default:
		return model.Session{}, apperr.Invalid("checkin.process", "session id or code required")
	}
}
