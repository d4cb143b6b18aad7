package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/model"
)

type recordKey struct {
	sessionID string
	studentID string
}

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	records  map[recordKey]model.AttendanceRecord
	requests map[string]model.AttendanceRequest
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]model.Session),
		records:  make(map[recordKey]model.AttendanceRecord),
		requests: make(map[string]model.AttendanceRequest),
	}
}

func (m *Memory) CreateSession(ctx context.Context, s model.Session) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return apperr.ErrConflict
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.Session{}, apperr.FromContext(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, apperr.ErrNotFound
	}
	return s, nil
}

func (m *Memory) EndSession(ctx context.Context, id string, endTime time.Time) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return model.Session{}, apperr.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, apperr.ErrNotFound
	}
	if !s.Active {
		return s, apperr.ErrAlreadyEnded
	}
	s.Active = false
	s.EndTime = endTime
	m.sessions[id] = s
	return s, nil
}

func (m *Memory) ListSessions(ctx context.Context, q SessionQuery) ([]model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.FromContext(err)
	}
	m.mu.RLock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.InstructorID != q.InstructorID {
			continue
		}
		if q.From != nil && s.StartTime.Before(*q.From) {
			continue
		}
		if q.To != nil && s.StartTime.After(*q.To) {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.SessionID, rec.StudentID}] = rec
	return nil
}

func (m *Memory) ListRecords(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	grouped, err := m.ListRecordsBySessions(ctx, []string{sessionID})
	if err != nil {
		return nil, err
	}
	return grouped[sessionID], nil
}

func (m *Memory) ListRecordsBySessions(ctx context.Context, sessionIDs []string) (map[string][]model.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.FromContext(err)
	}
	wanted := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	out := make(map[string][]model.AttendanceRecord, len(sessionIDs))
	m.mu.RLock()
	for k, r := range m.records {
		if wanted[k.sessionID] {
			out[k.sessionID] = append(out[k.sessionID], r)
		}
	}
	m.mu.RUnlock()
	for id := range out {
		recs := out[id]
		sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	}
	return out, nil
}

func (m *Memory) CreateRequest(ctx context.Context, r model.AttendanceRequest) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return apperr.ErrConflict
	}
	m.requests[r.ID] = cloneRequest(r)
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (model.AttendanceRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.AttendanceRequest{}, apperr.FromContext(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return model.AttendanceRequest{}, apperr.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (m *Memory) ListRequests(ctx context.Context, q RequestQuery) ([]model.AttendanceRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.FromContext(err)
	}
	m.mu.RLock()
	var out []model.AttendanceRequest
	for _, r := range m.requests {
		if r.InstructorID == q.InstructorID {
			out = append(out, cloneRequest(r))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

// Atomically holds the write lock for the whole of fn and applies its writes only on success.
func (m *Memory) Atomically(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m, requests: make(map[string]model.AttendanceRequest)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	for id, r := range tx.requests {
		m.requests[id] = r
	}
	for _, rec := range tx.records {
		m.records[recordKey{rec.SessionID, rec.StudentID}] = rec
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

// memTx buffers writes; the parent lock is already held.
type memTx struct {
	m        *Memory
	requests map[string]model.AttendanceRequest
	records  []model.AttendanceRecord
}

func (t *memTx) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	t.records = append(t.records, rec)
	return nil
}

func (t *memTx) ReviewRequest(ctx context.Context, r Review) (model.AttendanceRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.AttendanceRequest{}, apperr.FromContext(err)
	}
	cur, ok := t.requests[r.RequestID]
	if !ok {
		cur, ok = t.m.requests[r.RequestID]
	}
	if !ok {
		return model.AttendanceRequest{}, apperr.ErrNotFound
	}
	if cur.Status != model.RequestPending {
		return cloneRequest(cur), apperr.ErrAlreadyReviewed
	}
	cur = cloneRequest(cur)
	reviewedAt := r.ReviewedAt
	cur.Status = r.Status
	cur.ReviewedAt = &reviewedAt
	cur.ReviewedBy = r.ReviewedBy
	cur.ReviewComments = r.Comments
	t.requests[r.RequestID] = cur
	return cloneRequest(cur), nil
}

func cloneRequest(r model.AttendanceRequest) model.AttendanceRequest {
	if r.Evidence != nil {
		r.Evidence = append([]model.Evidence(nil), r.Evidence...)
	}
	if r.Location != nil {
		loc := *r.Location
		r.Location = &loc
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		r.ReviewedAt = &t
	}
	if r.OriginalAttempt != nil {
		a := *r.OriginalAttempt
		r.OriginalAttempt = &a
	}
	return r
}
