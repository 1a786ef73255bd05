package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// pgUniqueViolation is the SQLSTATE Postgres reports for unique and primary
// key conflicts.
const pgUniqueViolation = "23505"

// Options selects and locates the backing database.
type Options struct {
	Driver string
	Path   string // sqlite
	DSN    string // postgres
}

// SQLStore implements Store over database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
	newID   func() string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	switch opts.Driver {
	case "", DialectSQLite:
		return NewSQLiteStore(opts.Path)
	case DialectPostgres:
		return NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

// NewSQLiteStore opens the SQLite database at dbPath, applies pragmas and
// runs migrations.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db, DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}

	return NewWithDB(db, DialectSQLite), nil
}

// NewPostgresStore connects through the pgx stdlib driver and runs
// migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db, DialectPostgres); err != nil {
		db.Close()
		return nil, err
	}

	return NewWithDB(db, DialectPostgres), nil
}

// NewWithDB wraps an already-migrated connection.
func NewWithDB(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
}

func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Driver returns the SQL dialect in use.
func (s *SQLStore) Driver() string {
	return s.dialect
}

// Ping verifies the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// q rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) q(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	return rebind(query)
}

func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique or primary key conflict
// from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
