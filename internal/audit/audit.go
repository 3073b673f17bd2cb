// Package audit keeps one row per finished chat turn in SQLite. Message
// content is never stored, only the outcome of each turn.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome is how a turn ended
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomeFailed    Outcome = "failed"
)

// Entry represents a finished turn
type Entry struct {
	ID            int64
	SessionID     string
	TurnID        string
	Model         string
	Outcome       Outcome
	StatusCode    int
	Error         string
	ResponseChars int
	RevealedChars int
	Duration      time.Duration
	Timestamp     time.Time
}

// Recorder receives finished turns
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store is a Recorder backed by SQLite
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		turn_id TEXT NOT NULL,
		model TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER,
		error TEXT,
		response_chars INTEGER,
		revealed_chars INTEGER,
		duration_ms INTEGER,
		timestamp DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create turns table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a finished turn
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (
			session_id, turn_id, model, outcome, status_code, error,
			response_chars, revealed_chars, duration_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.TurnID, e.Model, string(e.Outcome), e.StatusCode, e.Error,
		e.ResponseChars, e.RevealedChars, e.Duration.Milliseconds(), e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns of a session, oldest first
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, turn_id, model, outcome, status_code, error,
		        response_chars, revealed_chars, duration_ms, timestamp
		FROM (
			SELECT * FROM turns WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.TurnID, &e.Model, &outcome, &e.StatusCode, &e.Error,
			&e.ResponseChars, &e.RevealedChars, &durationMS, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
