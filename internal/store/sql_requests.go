package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"classattend/internal/apperr"
	"classattend/internal/geo"
	"classattend/internal/model"
)

const requestColumns = `id, student_id, student_name, student_email, session_id, session_name, class_name,
	instructor_id, request_type, status, description, evidence, loc_lat, loc_lon, submitted_at,
	reviewed_at, reviewed_by, review_comments, original_attempt`

func scanRequest(row scanner) (model.AttendanceRequest, error) {
	var (
		r              model.AttendanceRequest
		evidence       sql.NullString
		attempt        sql.NullString
		latPtr, lonPtr *float64
	)
	err := row.Scan(&r.ID, &r.StudentID, &r.StudentName, &r.StudentEmail, &r.SessionID, &r.SessionName,
		&r.ClassName, &r.InstructorID, &r.RequestType, &r.Status, &r.Description, &evidence, &latPtr, &lonPtr,
		&r.SubmittedAt, &r.ReviewedAt, &r.ReviewedBy, &r.ReviewComments, &attempt)
	if err != nil {
		return r, err
	}
	r.SubmittedAt = r.SubmittedAt.UTC()
	if r.ReviewedAt != nil {
		t := r.ReviewedAt.UTC()
		r.ReviewedAt = &t
	}
	if latPtr != nil && lonPtr != nil {
		r.Location = &geo.Point{Lat: *latPtr, Lon: *lonPtr}
	}
	if evidence.Valid && evidence.String != "" {
		if err := json.Unmarshal([]byte(evidence.String), &r.Evidence); err != nil {
			return r, fmt.Errorf("decode evidence: %w", err)
		}
	}
	if attempt.Valid && attempt.String != "" {
		r.OriginalAttempt = &model.Attempt{}
		if err := json.Unmarshal([]byte(attempt.String), r.OriginalAttempt); err != nil {
			return r, fmt.Errorf("decode original attempt: %w", err)
		}
	}
	return r, nil
}

// CreateRequest inserts a new exception request.
func (s *SQL) CreateRequest(ctx context.Context, r model.AttendanceRequest) error {
	var evidence, attempt *string
	if len(r.Evidence) > 0 {
		b, err := json.Marshal(r.Evidence)
		if err != nil {
			return err
		}
		v := string(b)
		evidence = &v
	}
	if r.OriginalAttempt != nil {
		b, err := json.Marshal(r.OriginalAttempt)
		if err != nil {
			return err
		}
		v := string(b)
		attempt = &v
	}
	var lat, lon *float64
	if r.Location != nil {
		lat, lon = &r.Location.Lat, &r.Location.Lon
	}
	var reviewedAt any
	if r.ReviewedAt != nil {
		reviewedAt = r.ReviewedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO attendance_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`), r.ID, r.StudentID, r.StudentName, r.StudentEmail, r.SessionID, r.SessionName, r.ClassName,
		r.InstructorID, string(r.RequestType), string(r.Status), r.Description, evidence, lat, lon,
		r.SubmittedAt.UTC(), reviewedAt, r.ReviewedBy, r.ReviewComments, attempt)
	return classify(err)
}

// GetRequest returns a request by id.
func (s *SQL) GetRequest(ctx context.Context, id string) (model.AttendanceRequest, error) {
	return s.getRequest(ctx, s.db, id)
}

func (s *SQL) getRequest(ctx context.Context, q querier, id string) (model.AttendanceRequest, error) {
	r, err := scanRequest(q.QueryRowContext(ctx, s.rebind(`SELECT `+requestColumns+` FROM attendance_requests WHERE id = $1`), id))
	if err != nil {
		return model.AttendanceRequest{}, classify(err)
	}
	return r, nil
}

// ListRequests returns an instructor's requests ordered by submission time descending.
func (s *SQL) ListRequests(ctx context.Context, q RequestQuery) ([]model.AttendanceRequest, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+requestColumns+` FROM attendance_requests
		WHERE instructor_id = $1
		ORDER BY submitted_at DESC
	`), q.InstructorID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []model.AttendanceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// Atomically runs fn inside a database transaction.
func (s *SQL) Atomically(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	if err := fn(&sqlTx{s: s, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return classify(tx.Commit())
}

type sqlTx struct {
	s  *SQL
	tx *sql.Tx
}

func (t *sqlTx) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) error {
	return t.s.upsertRecord(ctx, t.tx, rec)
}

// ReviewRequest is a conditional update keyed on status = pending; the row lock
// taken by UPDATE serialises concurrent reviewers.
func (t *sqlTx) ReviewRequest(ctx context.Context, r Review) (model.AttendanceRequest, error) {
	res, err := t.tx.ExecContext(ctx, t.s.rebind(`
		UPDATE attendance_requests
		SET status = $2, reviewed_at = $3, reviewed_by = $4, review_comments = $5
		WHERE id = $1 AND status = $6
	`), r.RequestID, string(r.Status), r.ReviewedAt.UTC(), r.ReviewedBy, r.Comments, string(model.RequestPending))
	if err != nil {
		return model.AttendanceRequest{}, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.AttendanceRequest{}, classify(err)
	}
	updated, err := t.s.getRequest(ctx, t.tx, r.RequestID)
	if err != nil {
		return model.AttendanceRequest{}, err
	}
	if n == 0 {
		return updated, apperr.ErrAlreadyReviewed
	}
	return updated, nil
}
