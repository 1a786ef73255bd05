package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/migrations"
	_ "modernc.org/sqlite"
)

// SQLite persists keys in a single-table SQLite database on the device.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies
// the local schema migrations.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("kv: sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create kv directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open kv database: %w", err)
	}
	// One writer keeps modernc from surfacing SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if err := migrations.Up(db, "sqlite", migrations.LocalFS, "local"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// querier is satisfied by *sql.DB and by a *sql.Conn pinned inside a
// transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, s.db, key)
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, s.db, key, value)
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return del(ctx, s.db, key)
}

// Tx runs fn with the database write lock held. Reads and writes made
// through the Store passed to fn commit together, and no other process
// sharing the file can write in between. An error from fn rolls back.
func (s *SQLite) Tx(ctx context.Context, fn func(Store) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("kv tx: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("kv tx begin: %w", err)
	}
	if err := fn(&sqliteTx{conn: conn}); err != nil {
		conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return fmt.Errorf("kv tx commit: %w", err)
	}
	return nil
}

// sqliteTx is the Store view handed to a Tx callback.
type sqliteTx struct {
	conn *sql.Conn
}

func (t *sqliteTx) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, t.conn, key)
}

func (t *sqliteTx) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, t.conn, key, value)
}

func (t *sqliteTx) Delete(ctx context.Context, key string) error {
	return del(ctx, t.conn, key)
}

// Close is a no-op; the transaction ends when the callback returns.
func (t *sqliteTx) Close() error { return nil }

func get(ctx context.Context, q querier, key string) ([]byte, error) {
	var v string
	err := q.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return []byte(v), nil
}

func set(ctx context.Context, q querier, key string, value []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func del(ctx context.Context, q querier, key string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}
