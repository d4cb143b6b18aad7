package request

import (
	"strings"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/model"
)

// Filter narrows a request listing. Zero fields are inactive; active fields
// combine with AND.
type Filter struct {
	Status    model.RequestStatus
	Type      model.RequestType
	DateFrom  time.Time
	DateTo    time.Time // inclusive through the end of that day, in DateTo's location
	ClassName string
	Search    string
}

// Validate rejects unknown enum values and inverted date ranges.
func (f Filter) Validate() error {
	const op = "request.filter"
	if f.Status != "" && !f.Status.Valid() {
		return apperr.Invalid(op, "unknown status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return apperr.Invalid(op, "unknown request type %q", f.Type)
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(endOfDay(f.DateTo)) {
		return apperr.Invalid(op, "dateFrom is after dateTo")
	}
	return nil
}

// Match reports whether r passes every active filter.
func (f Filter) Match(r model.AttendanceRequest) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Type != "" && r.RequestType != f.Type {
		return false
	}
	if !f.DateFrom.IsZero() && r.SubmittedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && r.SubmittedAt.After(endOfDay(f.DateTo)) {
		return false
	}
	if f.ClassName != "" && r.ClassName != f.ClassName {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return containsFold(r.StudentName, q) || containsFold(r.StudentEmail, q) ||
			containsFold(r.SessionName, q) || containsFold(r.Description, q)
	}
	return true
}

// Apply returns the requests matching f, preserving order.
func Apply(requests []model.AttendanceRequest, f Filter) []model.AttendanceRequest {
	out := make([]model.AttendanceRequest, 0, len(requests))
	for _, r := range requests {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarises a request set.
type Stats struct {
	Total    int                       `json:"total"`
	Pending  int                       `json:"pending"`
	Approved int                       `json:"approved"`
	Rejected int                       `json:"rejected"`
	ByType   map[model.RequestType]int `json:"byType"`
}

// ComputeStats counts requests by status and type. Every type is present in ByType.
func ComputeStats(requests []model.AttendanceRequest) Stats {
	s := Stats{Total: len(requests), ByType: make(map[model.RequestType]int, len(model.RequestTypes))}
	for _, t := range model.RequestTypes {
		s.ByType[t] = 0
	}
	for _, r := range requests {
		switch r.Status {
		case model.RequestPending:
			s.Pending++
		case model.RequestApproved:
			s.Approved++
		case model.RequestRejected:
			s.Rejected++
		}
		if r.RequestType.Valid() {
			s.ByType[r.RequestType]++
		}
	}
	return s
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func containsFold(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}
