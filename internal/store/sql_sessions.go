package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"classattend/internal/apperr"
	"classattend/internal/model"
)

const sessionColumns = `id, instructor_id, class_id, class_name, start_time, end_time, duration_minutes,
	geo_lat, geo_lon, geo_radius, session_code, active`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.InstructorID, &s.ClassID, &s.ClassName, &s.StartTime, &s.EndTime,
		&s.DurationMinutes, &s.Geofence.Lat, &s.Geofence.Lon, &s.Geofence.Radius, &s.SessionCode, &s.Active)
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return s, err
}

// CreateSession inserts a new session.
func (s *SQL) CreateSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`), sess.ID, sess.InstructorID, sess.ClassID, sess.ClassName, sess.StartTime.UTC(), sess.EndTime.UTC(),
		sess.DurationMinutes, sess.Geofence.Lat, sess.Geofence.Lon, sess.Geofence.Radius, sess.SessionCode, sess.Active)
	return classify(err)
}

// GetSession returns a session by id.
func (s *SQL) GetSession(ctx context.Context, id string) (model.Session, error) {
	return s.getSession(ctx, s.db, id)
}

func (s *SQL) getSession(ctx context.Context, q querier, id string) (model.Session, error) {
	sess, err := scanSession(q.QueryRowContext(ctx, s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`), id))
	if err != nil {
		return model.Session{}, classify(err)
	}
	return sess, nil
}

// EndSession sets active=false and freezes endTime, only if the session is still active.
func (s *SQL) EndSession(ctx context.Context, id string, endTime time.Time) (model.Session, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sessions SET active = $2, end_time = $3
		WHERE id = $1 AND active = $4
	`), id, false, endTime.UTC(), true)
	if err != nil {
		return model.Session{}, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Session{}, classify(err)
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if n == 0 {
		return sess, apperr.ErrAlreadyEnded
	}
	return sess, nil
}

// ListSessions returns an instructor's sessions ordered by start time descending.
func (s *SQL) ListSessions(ctx context.Context, q SessionQuery) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE instructor_id = $1`
	args := []any{q.InstructorID}
	if q.From != nil {
		args = append(args, q.From.UTC())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, q.To.UTC())
		query += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	query += " ORDER BY start_time DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, sess)
	}
	return out, classify(rows.Err())
}

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

// classify maps driver errors onto the apperr taxonomy. Constraint
// violations are permanent and must not be retried.
func classify(err error) error {
	var (
		pgErr   *pgconn.PgError
		liteErr *sqlite.Error
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.ConstraintName)
	case errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT:
		return apperr.ErrConflict
	default:
		return apperr.FromContext(err)
	}
}
