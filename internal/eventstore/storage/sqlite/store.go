// Package sqlite implements the event journal's persistence contracts over a
// single SQLite file. One database holds the event log, snapshots, and
// projection checkpoints so appends and their bookkeeping share transaction
// and visibility boundaries.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/brightbook/eventcore/internal/eventstore/storage"
	"github.com/brightbook/eventcore/internal/eventstore/storage/sqlite/migrations"
	sqlitemigrate "github.com/brightbook/eventcore/internal/platform/storage/sqlitemigrate"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements journal persistence over SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a journal SQLite store and applies bundled migrations.
//
// This keeps startup and schema evolution in one place, instead of requiring
// callers to coordinate migrations independently. The DSN turns on WAL with a
// busy timeout and takes the write lock at BeginTx (_txlock=immediate), so
// racing appenders queue behind the winner's commit instead of failing with
// SQLITE_BUSY mid-transaction.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}

	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB returns the raw database handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// runMigrations applies embedded SQL migrations in filename order.
func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "events")
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

var (
	_ storage.EventStore      = (*Store)(nil)
	_ storage.StreamReader    = (*Store)(nil)
	_ storage.SnapshotStore   = (*Store)(nil)
	_ storage.CheckpointStore = (*Store)(nil)
)
