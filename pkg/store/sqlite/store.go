// Package sqlite implements store.Store on an embedded SQLite database
// (modernc.org/sqlite, no cgo). Each record is kept as a JSON document next
// to the columns needed for ordering, uniqueness and cascading deletes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/store"
)

// MemoryPath opens a private in-memory database instead of a file.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS suites (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tests (
	id         TEXT PRIMARY KEY,
	suite_id   TEXT NOT NULL REFERENCES suites(id) ON DELETE CASCADE,
	ord        INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tests_suite ON tests(suite_id, ord, created_at);

CREATE TABLE IF NOT EXISTS environments (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_environments_name ON environments(lower(name));

CREATE TABLE IF NOT EXISTS endpoints (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	suite_id   TEXT REFERENCES suites(id) ON DELETE CASCADE,
	started_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite_id, started_at DESC);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(lower(email));
`

// Store implements store.Store using SQLite.
type Store struct {
	cfg       store.Config
	path      string
	db        *sql.DB
	listeners store.Listeners
	log       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = logging.OrNop(log) }
}

// New creates a Store for cfg.DatabasePath(). Call Open before use.
func New(cfg store.Config, opts ...Option) *Store {
	if cfg.DataDir == "" {
		cfg.DataDir = store.DefaultDataDir()
	}
	s := &Store{cfg: cfg, path: cfg.DatabasePath(), log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// dsn builds the modernc connection string with per-connection pragmas.
func (s *Store) dsn() string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(10000)")
	params.Set("_txlock", "immediate")

	if s.path == MemoryPath {
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return fmt.Sprintf("file:apilab_%s?%s", ulid.Make().String(), params.Encode())
	}
	params.Add("_pragma", "journal_mode(WAL)")
	if s.cfg.ReadOnly {
		params.Set("mode", "ro")
	} else {
		params.Set("mode", "rwc")
	}
	return fmt.Sprintf("file:%s?%s", s.path, params.Encode())
}

// Open connects to the database and creates the schema.
func (s *Store) Open(ctx context.Context) error {
	if s.path != MemoryPath && !s.cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers and keeps a memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	if !s.cfg.ReadOnly {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			return fmt.Errorf("create schema: %w", err)
		}
	}
	s.db = db
	s.log.Debug("sqlite store opened", "path", s.path)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// AddChangeListener adds a listener for data changes.
func (s *Store) AddChangeListener(listener store.ChangeListener) {
	s.listeners.AddChangeListener(listener)
}

// Suites returns the suite store.
func (s *Store) Suites() store.SuiteStore { return &suiteStore{s: s} }

// Tests returns the test store.
func (s *Store) Tests() store.TestStore { return &testStore{s: s} }

// Environments returns the environment store.
func (s *Store) Environments() store.EnvironmentStore { return &environmentStore{s: s} }

// Endpoints returns the mock endpoint store.
func (s *Store) Endpoints() store.EndpointStore { return &endpointStore{s: s} }

// Runs returns the run store.
func (s *Store) Runs() store.RunStore { return &runStore{s: s} }

// Users returns the user store.
func (s *Store) Users() store.UserStore { return &userStore{s: s} }

var _ store.Store = (*Store)(nil)

func (s *Store) checkWritable() error {
	if s.cfg.ReadOnly {
		return store.ErrReadOnly
	}
	return nil
}

// mapError translates driver errors into store errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return store.ErrAlreadyExists
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return store.ErrNotFound
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		// Primary code only; the message names the constraint kind.
		if strings.Contains(se.Error(), "FOREIGN KEY") {
			return store.ErrNotFound
		}
		return store.ErrAlreadyExists
	case sqlite3.SQLITE_READONLY:
		return store.ErrReadOnly
	}
	return err
}

// requireAffected returns ErrNotFound when a write touched no rows.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// getDoc loads one JSON document.
func getDoc[T any](ctx context.Context, q querier, query string, args ...any) (*T, error) {
	var raw string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return nil, mapError(err)
	}
	v := new(T)
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return v, nil
}

// listDocs loads every JSON document returned by query.
func listDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	result := []*T{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v := new(T)
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(b), nil
}

func stamp(created *time.Time, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
