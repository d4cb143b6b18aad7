package ledger

import (
	"context"

	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/clock"
	"classattend/internal/geo"
	"classattend/internal/metrics"
	"classattend/internal/model"
	"classattend/internal/store"
)

// Ledger is the source of truth for presence: one record per (session, student).
type Ledger struct {
	store store.Store
	clock clock.Clock
}

// New creates a ledger over st.
func New(st store.Store, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.Real()
	}
	return &Ledger{store: st, clock: clk}
}

// Record upserts the outcome for (sessionID, studentID). A later call replaces
// the earlier record. It is not retried on failure.
func (l *Ledger) Record(ctx context.Context, sessionID, studentID string, status model.RecordStatus, loc geo.Point, faceScore *float64) (model.AttendanceRecord, error) {
	const op = "ledger.record"
	switch {
	case sessionID == "" || studentID == "":
		return model.AttendanceRecord{}, apperr.Invalid(op, "session and student required")
	case !status.Valid():
		return model.AttendanceRecord{}, apperr.Invalid(op, "unknown status %q", status)
	case !geo.ValidCoordinates(loc):
		return model.AttendanceRecord{}, apperr.Invalid(op, "location out of range")
	}
	rec := model.AttendanceRecord{
		SessionID:      sessionID,
		StudentID:      studentID,
		Status:         status,
		Timestamp:      l.clock.Now().UTC(),
		Location:       loc,
		FaceMatchScore: faceScore,
	}
	if err := l.store.UpsertRecord(ctx, rec); err != nil {
		return model.AttendanceRecord{}, apperr.E(op, sessionID, err)
	}
	metrics.RecordsWritten.WithLabelValues(string(status), "checkin").Inc()
	log.Debug().Str("session_id", sessionID).Str("student_id", studentID).Str("status", string(status)).Msg("attendance recorded")
	return rec, nil
}

// Get returns every record of a session ordered by timestamp.
func (l *Ledger) Get(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	recs, err := l.store.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, apperr.E("ledger.get", sessionID, err)
	}
	return recs, nil
}

// ManualPresent describes an instructor override produced by an approved request.
type ManualPresent struct {
	SessionID         string
	StudentID         string
	ApprovedBy        string
	OriginalRequestID string
	// Location is nil when the request carried none; the record is then placed
	// at {0,0} and flagged LocationUnverified.
	Location *geo.Point
}

// MarkManualPresent writes a present record through w, which is normally the
// Tx of the approving review so both writes commit together.
func (l *Ledger) MarkManualPresent(ctx context.Context, w store.RecordWriter, m ManualPresent) (model.AttendanceRecord, error) {
	rec := model.AttendanceRecord{
		SessionID:         m.SessionID,
		StudentID:         m.StudentID,
		Status:            model.StatusPresent,
		Timestamp:         l.clock.Now().UTC(),
		ApprovedManually:  true,
		ApprovedBy:        m.ApprovedBy,
		OriginalRequestID: m.OriginalRequestID,
	}
	if m.Location != nil {
		rec.Location = *m.Location
	} else {
		rec.LocationUnverified = true
	}
	if err := w.UpsertRecord(ctx, rec); err != nil {
		return model.AttendanceRecord{}, apperr.E("ledger.mark_manual_present", m.SessionID, err)
	}
	return rec, nil
}
