package store

import (
	"context"
	"time"

	"classattend/internal/model"
)

// SessionQuery selects an instructor's sessions, newest first.
type SessionQuery struct {
	InstructorID string
	From         *time.Time
	To           *time.Time
	Limit        int
}

// RequestQuery selects the requests assigned to an instructor, newest first.
type RequestQuery struct {
	InstructorID string
}

// Review is the terminal transition applied to a pending request.
type Review struct {
	RequestID  string
	Status     model.RequestStatus
	ReviewedAt time.Time
	ReviewedBy string
	Comments   string
}

// RecordWriter upserts ledger entries keyed by (session, student).
type RecordWriter interface {
	UpsertRecord(ctx context.Context, rec model.AttendanceRecord) error
}

// Tx is the write surface available inside Atomically. Writes made through it
// become visible together or not at all.
type Tx interface {
	RecordWriter
	// ReviewRequest moves a pending request to a terminal status. It fails with
	// apperr.ErrAlreadyReviewed when the request is no longer pending.
	ReviewRequest(ctx context.Context, r Review) (model.AttendanceRequest, error)
}

// Store is the persistence boundary for sessions, attendance records and requests.
// Errors are classified with the apperr kinds.
type Store interface {
	CreateSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	// EndSession marks an active session ended at endTime. It fails with
	// apperr.ErrAlreadyEnded when the session was already ended.
	EndSession(ctx context.Context, id string, endTime time.Time) (model.Session, error)
	ListSessions(ctx context.Context, q SessionQuery) ([]model.Session, error)

	RecordWriter
	ListRecords(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
	ListRecordsBySessions(ctx context.Context, sessionIDs []string) (map[string][]model.AttendanceRecord, error)

	CreateRequest(ctx context.Context, r model.AttendanceRequest) error
	GetRequest(ctx context.Context, id string) (model.AttendanceRequest, error)
	ListRequests(ctx context.Context, q RequestQuery) ([]model.AttendanceRequest, error)

	Atomically(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
