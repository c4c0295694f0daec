// Package sqlitestore provides a SQLite implementation of CoordinatorStore.
// Records are kept as JSON payloads next to the columns queries filter on.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/runoshun/relay/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	kind       TEXT    NOT NULL,
	message_id INTEGER NOT NULL,
	chat_id    INTEGER NOT NULL,
	ts         INTEGER NOT NULL,
	processed  INTEGER NOT NULL DEFAULT 0,
	payload    TEXT    NOT NULL,
	PRIMARY KEY (kind, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages (kind, processed, message_id);

CREATE TABLE IF NOT EXISTS lease (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS interrupts (
	message_id INTEGER PRIMARY KEY,
	payload    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	message_id INTEGER PRIMARY KEY,
	primary_id INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// Store implements domain.CoordinatorStore on a SQLite database.
// A row whose payload cannot be decoded is logged and left out of reads.
type Store struct {
	logger  domain.Logger
	db      *sql.DB
	dataDir string
}

// Ensure Store implements CoordinatorStore.
var _ domain.CoordinatorStore = (*Store)(nil)

// Open opens (creating if needed) relay.db under dataDir. A nil logger discards.
// The schema is created by Initialize.
func Open(dataDir string, logger domain.Logger) (*Store, error) {
	if logger == nil {
		logger = domain.NopLogger{}
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000", filepath.Join(dataDir, domain.SQLiteFileName))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	return &Store{logger: logger, db: db, dataDir: dataDir}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the schema and the tasks directory.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(domain.TasksDir(s.dataDir), 0o750); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return wrapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// wrapErr maps a missing schema to ErrNotInitialized.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return domain.ErrNotInitialized
	}
	return err
}

// skipCorrupted logs a row left out of a read because its payload is unreadable.
func (s *Store) skipCorrupted(kind string, id int64, err error) {
	s.logger.Error(0, "store", fmt.Sprintf("%v: skipped %s %d: %v", domain.ErrStoreCorrupted, kind, id, err))
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
