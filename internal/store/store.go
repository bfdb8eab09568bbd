// Package store persists detection runs and their goal events in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/keagan/goalcut/internal/goals"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one analysis of a video or detection file.
type Run struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	FPS             float64   `json:"fps"`
	Frames          int       `json:"frames"`
	DurationSeconds float64   `json:"duration_seconds"`
	Threshold       float64   `json:"threshold"`
	CreatedAt       time.Time `json:"created_at"`
	Goals           int       `json:"goals"`
	Events          []Event   `json:"events,omitempty"`
}

// Event is a stored goal with the clip cut for it, if any.
type Event struct {
	goals.GoalEvent
	ClipPath string `json:"clip_path,omitempty"`
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		fps REAL NOT NULL,
		frames INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		threshold REAL NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS goal_events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		sequence_number INTEGER NOT NULL,
		timestamp_seconds REAL NOT NULL,
		confidence REAL NOT NULL,
		frame_index INTEGER NOT NULL,
		clip_path TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_goal_events_run ON goal_events(run_id, sequence_number);
	`
	_, err := s.conn.Exec(query)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveRun inserts run and its events in one transaction. An empty ID and a
// zero CreatedAt are filled in.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Goals = len(run.Events)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, source, fps, frames, duration_seconds, threshold, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.FPS, run.Frames, run.DurationSeconds, run.Threshold, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, ev := range run.Events {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO goal_events (id, run_id, sequence_number, timestamp_seconds, confidence, frame_index, clip_path)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), run.ID, ev.SequenceNumber, ev.Timestamp, ev.Confidence, ev.FrameIndex,
			sql.NullString{String: ev.ClipPath, Valid: ev.ClipPath != ""},
		)
		if err != nil {
			return fmt.Errorf("failed to insert goal %d: %w", ev.SequenceNumber, err)
		}
	}
	return tx.Commit()
}

// GetRun loads a run with its events in sequence order.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, source, fps, frames, duration_seconds, threshold, created_at
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Source, &run.FPS, &run.Frames, &run.DurationSeconds, &run.Threshold, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT sequence_number, timestamp_seconds, confidence, frame_index, clip_path
		FROM goal_events WHERE run_id = ?
		ORDER BY sequence_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev   Event
			clip sql.NullString
		)
		if err := rows.Scan(&ev.SequenceNumber, &ev.Timestamp, &ev.Confidence, &ev.FrameIndex, &clip); err != nil {
			return nil, fmt.Errorf("failed to scan goal event: %w", err)
		}
		ev.ClipPath = clip.String
		run.Events = append(run.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	run.Goals = len(run.Events)
	return run, nil
}

// ListRuns returns the most recent runs first, without their events. A
// non-positive limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.id, r.source, r.fps, r.frames, r.duration_seconds, r.threshold, r.created_at,
			(SELECT COUNT(*) FROM goal_events g WHERE g.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.FPS, &r.Frames, &r.DurationSeconds, &r.Threshold, &r.CreatedAt, &r.Goals); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
