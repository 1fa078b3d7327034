// SPDX-License-Identifier: MIT

// Package history keeps a local SQLite log of every diagnosis published on
// this machine.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	applog "whisperer/internal/log"
	"whisperer/internal/protocol"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one stored diagnosis.
type Entry struct {
	ID       string                   `json:"id"`
	StoredAt time.Time                `json:"stored_at"`
	Record   protocol.DiagnosisRecord `json:"record"`
}

// Store wraps the SQLite connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS diagnoses (
	id TEXT PRIMARY KEY,
	stored_at INTEGER NOT NULL, -- unix nanoseconds
	component TEXT NOT NULL,
	severity TEXT NOT NULL,
	urgency TEXT NOT NULL,
	confidence REAL NOT NULL,
	record_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_stored_at ON diagnoses(stored_at);
CREATE INDEX IF NOT EXISTS idx_diagnoses_component ON diagnoses(component);
`

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %q: %w", path, err)
	}
	// One connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history wal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}

	applog.Debugf("history: opened %s", path)
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores rec under a new local id and returns the entry.
func (s *Store) Insert(ctx context.Context, rec *protocol.DiagnosisRecord) (*Entry, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode diagnosis: %w", err)
	}

	e := &Entry{ID: uuid.NewString(), StoredAt: s.now().UTC(), Record: *rec}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO diagnoses (id, stored_at, component, severity, urgency, confidence, record_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.StoredAt.UnixNano(), rec.Component, string(rec.Severity),
		string(rec.UrgencyLevel), rec.ConfidenceScore, string(body))
	if err != nil {
		return nil, fmt.Errorf("insert diagnosis: %w", err)
	}
	return e, nil
}

// UpdateRecord replaces the stored record of entry id, used when an
// explanation arrives after the record was stored.
func (s *Store) UpdateRecord(ctx context.Context, id string, rec *protocol.DiagnosisRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode diagnosis: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE diagnoses SET record_json = ? WHERE id = ?`, string(body), id)
	if err != nil {
		return fmt.Errorf("update diagnosis %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update diagnosis %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stored_at, record_json
		FROM diagnoses
		ORDER BY stored_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			storedAt int64
			body     string
		)
		if err := rows.Scan(&e.ID, &storedAt, &body); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.StoredAt = time.Unix(0, storedAt).UTC()
		if err := json.Unmarshal([]byte(body), &e.Record); err != nil {
			return nil, fmt.Errorf("decode diagnosis %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagnoses`).Scan(&n)
	return n, err
}
