// Package history persists delivery attempts to a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Schema is applied on every open. Additive changes only; altering a
// shipped column needs a migration.
const Schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          INTEGER NOT NULL,
	origin      TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	reason      TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS captures_at ON captures (at DESC);
`

const defaultRecentLimit = 20

// Entry is one delivery attempt, successful or not. at is stored as unix
// milliseconds.
type Entry struct {
	ID          int64
	At          time.Time
	Origin      string // inline or file
	Fingerprint string
	Reason      string // policy reason that accepted the image
	URL         string // hosted URL, empty on failure
	Error       string // failure detail, empty on success
	DurationMS  int64
}

// Store is the capture log.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it and applying Schema as
// needed.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record appends e and fills in its ID.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (at, origin, fingerprint, reason, url, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.Origin, e.Fingerprint, e.Reason, e.URL, e.Error, e.DurationMS)
	if err != nil {
		return fmt.Errorf("recording capture: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording capture: %w", err)
	}
	e.ID = id
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// uses a small default.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, origin, fingerprint, reason, url, error, duration_ms
		 FROM captures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			at int64
		)
		if err := rows.Scan(&e.ID, &at, &e.Origin, &e.Fingerprint, &e.Reason, &e.URL, &e.Error, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep entries and reports how many rows
// went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM captures WHERE id NOT IN (SELECT id FROM captures ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return n, nil
}
