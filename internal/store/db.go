package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported SQL dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQL is a Store backed by Postgres (pgx) or SQLite (modernc).
type SQL struct {
	db      *sql.DB
	dialect string
}

var _ Store = (*SQL)(nil)

// OpenSQL opens the database for dialect, applies pool defaults and runs migrations.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQL, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	case DialectSQLite:
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// single writer; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}

	s := &SQL{db: db, dialect: dialect}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: sqlite pragma: %w", err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Ping verifies connectivity.
func (s *SQL) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not connected")
	}
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders to ?N for SQLite, which binds ?N by index.
func (s *SQL) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

func placeholders(start, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", start+i)
	}
	return out
}
