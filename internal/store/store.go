// Package store implements the embedded single-file relational store
//: a modernc.org/sqlite database migrated with goose,
// accessed through sqlx, with a single-writer model enforced by a mutex
// around the write path while readers run lock-free under WAL snapshots.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/taskflow-dev/taskflowmcp/internal/apperr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the single-file embedded store for one workspace. All mutating
// operations go through withTx, which serializes writers behind writeMu;
// reads use a separate connection pool so they never block on the writer.
type Store struct {
	path    string
	writeMu sync.Mutex
	write   *sqlx.DB
	read    *sqlx.DB
	logger  *zap.Logger
}

// Open migrates (if needed) and opens the store at path. path is typically
// fingerprinted from a workspace identifier.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := path + "?_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	write, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Store("opening store for write", err)
	}
	write.SetMaxOpenConns(1) // single writer

	read, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		write.Close()
		return nil, apperr.Store("opening store for read", err)
	}
	read.SetMaxOpenConns(4)

	if err := migrate(write.DB); err != nil {
		write.Close()
		read.Close()
		return nil, apperr.Store("running migrations", err)
	}

	return &Store{path: path, write: write, read: read, logger: logger}, nil
}

// OpenMemory opens an ephemeral store backed by a temp file; used by tests
// that want real sqlite semantics without leaving a durable file around.
func OpenMemory(logger *zap.Logger) (*Store, func(), error) {
	dir, err := tempDir()
	if err != nil {
		return nil, nil, err
	}
	s, err := Open(dir+"/taskflow.db", logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		s.Close()
		removeAll(dir)
	}
	return s, cleanup, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close releases both database handles.
func (s *Store) Close() error {
	werr := s.write.Close()
	rerr := s.read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// withTx runs fn inside a write transaction, serialized across all callers.
// On any error the transaction rolls back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.write.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// reader exposes the read-only connection for snapshot queries.
func (s *Store) reader() *sqlx.DB { return s.read }
