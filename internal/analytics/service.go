package analytics

import (
	"context"
	"strings"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/clock"
	"classattend/internal/model"
	"classattend/internal/store"
)

// History limits.
const (
	HistoryLimit    = 100
	DefaultPageSize = 10
)

// Service loads session history from the store and runs the aggregations.
type Service struct {
	store store.Store
	clock clock.Clock
	loc   *time.Location
}

// NewService builds a service that buckets days and hours in loc.
func NewService(st store.Store, clk clock.Clock, loc *time.Location) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: st, clock: clk, loc: loc}
}

// Window selects an instructor's sessions by start date and class.
// DateTo is inclusive through the end of that day.
type Window struct {
	InstructorID string
	DateFrom     time.Time
	DateTo       time.Time
	ClassID      string
}

// Snapshot is the analytics view of a window. It is computed on every call.
type Snapshot struct {
	Overview Overview     `json:"overview"`
	Trend    []TrendPoint `json:"trend"`
	Classes  []ClassStat  `json:"classes"`
	Hours    []HourStat   `json:"hours"`
}

// Snapshot aggregates the sessions selected by w.
func (s *Service) Snapshot(ctx context.Context, w Window) (Snapshot, error) {
	sessions, err := s.load(ctx, "analytics.snapshot", w, 0)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Overview: Summarize(sessions, s.clock.Now()),
		Trend:    DailyTrend(sessions),
		Classes:  PerClass(sessions),
		Hours:    PerHour(sessions),
	}, nil
}

// HistoryQuery filters and pages the session history.
type HistoryQuery struct {
	Window
	Status   string // "", "active" or "completed"
	Search   string
	Page     int
	PageSize int
}

// HistoryRow is one session with its attendance totals.
type HistoryRow struct {
	Session        model.Session `json:"session"`
	Open           bool          `json:"open"`
	TotalAttendees int           `json:"totalAttendees"`
	PresentCount   int           `json:"presentCount"`
	Rate           float64       `json:"attendanceRate"`
}

// HistoryPage is one page of history rows, newest first.
type HistoryPage struct {
	Rows       []HistoryRow `json:"rows"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalRows  int          `json:"totalRows"`
	TotalPages int          `json:"totalPages"`
}

// History returns the most recent sessions matching q, paginated.
func (s *Service) History(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	const op = "analytics.history"
	switch q.Status {
	case "", "active", "completed":
	default:
		return HistoryPage{}, apperr.Invalid(op, "unknown status %q", q.Status)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	sessions, err := s.load(ctx, op, q.Window, HistoryLimit)
	if err != nil {
		return HistoryPage{}, err
	}

	now := s.clock.Now()
	search := strings.ToLower(strings.TrimSpace(q.Search))
	rows := make([]HistoryRow, 0, len(sessions))
	for _, sr := range sessions {
		open := sr.Session.IsOpen(now)
		if (q.Status == "active" && !open) || (q.Status == "completed" && open) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(sr.Session.ClassName), search) &&
			!strings.Contains(strings.ToLower(sr.Session.SessionCode), search) {
			continue
		}
		present := sr.PresentCount()
		rows = append(rows, HistoryRow{
			Session:        sr.Session,
			Open:           open,
			TotalAttendees: len(sr.Records),
			PresentCount:   present,
			Rate:           rate(present, len(sr.Records)),
		})
	}

	page := HistoryPage{Page: q.Page, PageSize: q.PageSize, TotalRows: len(rows)}
	page.TotalPages = (len(rows) + q.PageSize - 1) / q.PageSize
	start := (q.Page - 1) * q.PageSize
	if start >= len(rows) {
		page.Rows = []HistoryRow{}
		return page, nil
	}
	end := min(start+q.PageSize, len(rows))
	page.Rows = rows[start:end]
	return page, nil
}

// load fetches sessions in w, newest first, with records attached and start
// times converted to the service location.
func (s *Service) load(ctx context.Context, op string, w Window, limit int) ([]model.SessionRecords, error) {
	if w.InstructorID == "" {
		return nil, apperr.Invalid(op, "instructor id required")
	}
	q := store.SessionQuery{InstructorID: w.InstructorID}
	if !w.DateFrom.IsZero() {
		from := startOfDay(w.DateFrom.In(s.loc))
		q.From = &from
	}
	if !w.DateTo.IsZero() {
		to := startOfDay(w.DateTo.In(s.loc)).AddDate(0, 0, 1).Add(-time.Nanosecond)
		q.To = &to
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, apperr.Invalid(op, "dateFrom is after dateTo")
	}
	// class filtering happens after the query, so only cap the query when unfiltered
	if w.ClassID == "" {
		q.Limit = limit
	}

	sessions, err := s.store.ListSessions(ctx, q)
	if err != nil {
		return nil, apperr.E(op, w.InstructorID, err)
	}
	ids := make([]string, 0, len(sessions))
	kept := sessions[:0]
	for _, sess := range sessions {
		if w.ClassID != "" && sess.ClassID != w.ClassID {
			continue
		}
		if limit > 0 && len(kept) == limit {
			break
		}
		kept = append(kept, sess)
		ids = append(ids, sess.ID)
	}

	records, err := s.store.ListRecordsBySessions(ctx, ids)
	if err != nil {
		return nil, apperr.E(op, w.InstructorID, err)
	}
	out := make([]model.SessionRecords, 0, len(kept))
	for _, sess := range kept {
		sess.StartTime = sess.StartTime.In(s.loc)
		sess.EndTime = sess.EndTime.In(s.loc)
		out = append(out, model.SessionRecords{Session: sess, Records: records[sess.ID]})
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
