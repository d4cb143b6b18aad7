package store

import (
	"context"
	"fmt"
)

type migration struct {
	name string
	up   string
}

// migrations run in order; each is applied once and recorded in schema_migrations.
// The DDL sticks to types both Postgres and SQLite accept.
var migrations = []migration{
	{
		name: "001_create_sessions",
		up: `
			CREATE TABLE IF NOT EXISTS sessions (
				id               TEXT PRIMARY KEY,
				instructor_id    TEXT NOT NULL,
				class_id         TEXT NOT NULL,
				class_name       TEXT NOT NULL,
				start_time       TIMESTAMP NOT NULL,
				end_time         TIMESTAMP NOT NULL,
				duration_minutes INTEGER NOT NULL,
				geo_lat          DOUBLE PRECISION NOT NULL,
				geo_lon          DOUBLE PRECISION NOT NULL,
				geo_radius       DOUBLE PRECISION NOT NULL,
				session_code     TEXT NOT NULL,
				active           BOOLEAN NOT NULL
			)
		`,
	},
	{
		name: "002_index_sessions_instructor",
		up:   `CREATE INDEX IF NOT EXISTS idx_sessions_instructor_start ON sessions (instructor_id, start_time)`,
	},
	{
		name: "003_create_attendance_records",
		up: `
			CREATE TABLE IF NOT EXISTS attendance_records (
				session_id          TEXT NOT NULL,
				student_id          TEXT NOT NULL,
				status              TEXT NOT NULL,
				recorded_at         TIMESTAMP NOT NULL,
				loc_lat             DOUBLE PRECISION NOT NULL,
				loc_lon             DOUBLE PRECISION NOT NULL,
				face_match_score    DOUBLE PRECISION,
				approved_manually   BOOLEAN NOT NULL DEFAULT FALSE,
				approved_by         TEXT NOT NULL DEFAULT '',
				original_request_id TEXT NOT NULL DEFAULT '',
				location_unverified BOOLEAN NOT NULL DEFAULT FALSE,
				PRIMARY KEY (session_id, student_id)
			)
		`,
	},
	{
		name: "004_create_attendance_requests",
		up: `
			CREATE TABLE IF NOT EXISTS attendance_requests (
				id               TEXT PRIMARY KEY,
				student_id       TEXT NOT NULL,
				student_name     TEXT NOT NULL DEFAULT '',
				student_email    TEXT NOT NULL DEFAULT '',
				session_id       TEXT NOT NULL,
				session_name     TEXT NOT NULL DEFAULT '',
				class_name       TEXT NOT NULL DEFAULT '',
				instructor_id    TEXT NOT NULL,
				request_type     TEXT NOT NULL,
				status           TEXT NOT NULL,
				description      TEXT NOT NULL,
				evidence         TEXT,
				loc_lat          DOUBLE PRECISION,
				loc_lon          DOUBLE PRECISION,
				submitted_at     TIMESTAMP NOT NULL,
				reviewed_at      TIMESTAMP,
				reviewed_by      TEXT NOT NULL DEFAULT '',
				review_comments  TEXT NOT NULL DEFAULT '',
				original_attempt TEXT
			)
		`,
	},
	{
		name: "005_index_requests_instructor",
		up:   `CREATE INDEX IF NOT EXISTS idx_requests_instructor_submitted ON attendance_requests (instructor_id, submitted_at)`,
	},
}

func (s *SQL) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}
	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}
	return nil
}

func (s *SQL) runMigration(ctx context.Context, m migration) error {
	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM schema_migrations WHERE name = $1`), m.name).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, m.up); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO schema_migrations (name) VALUES ($1)`), m.name)
	return err
}
