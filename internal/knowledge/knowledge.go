// Package knowledge persists what webprobe learns across runs in a SQLite
// file: element signatures, selector attempts, test failures and flakiness
// statistics. Every mutation is committed immediately.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned when a lookup or update matches no row.
var ErrNotFound = errors.New("knowledge: not found")

// timeLayout is fixed width so that TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS element_signatures (
	id TEXT PRIMARY KEY,
	element_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	primary_selector TEXT NOT NULL,
	alternative_selectors TEXT NOT NULL DEFAULT '[]',
	stability REAL NOT NULL DEFAULT 1.0,
	last_seen TEXT NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	fail_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS selector_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signature_id TEXT NOT NULL,
	selector TEXT NOT NULL,
	success INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS test_failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	test_id TEXT NOT NULL,
	test_name TEXT NOT NULL,
	route TEXT NOT NULL DEFAULT '',
	error_type TEXT NOT NULL,
	error_message TEXT NOT NULL,
	selector TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	suggested_fix TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS flaky_tests (
	test_id TEXT PRIMARY KEY,
	test_name TEXT NOT NULL,
	total_runs INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	flakiness_score REAL NOT NULL DEFAULT 0,
	last_failure TEXT
);

CREATE INDEX IF NOT EXISTS idx_signatures_element ON element_signatures(element_id);
CREATE INDEX IF NOT EXISTS idx_attempts_signature ON selector_attempts(signature_id);
CREATE INDEX IF NOT EXISTS idx_failures_test ON test_failures(test_id);
CREATE INDEX IF NOT EXISTS idx_failures_type ON test_failures(error_type);
`

// Store is an open knowledge base.
type Store struct {
	db   *sqlx.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the knowledge base at path. The parent
// directory is created when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge base directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	// SQLite has a single writer; one connection serializes access from
	// parallel workers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create knowledge base schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close knowledge base: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

// execRequireRows maps a zero-row update to notFound.
func execRequireRows(result sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
