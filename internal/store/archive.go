// Package store persists finished episodes to a local SQLite archive so
// past runs can be inspected and reported on after the session files
// are gone.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"webnerd/internal/lattice"
	"webnerd/internal/logging"
)

// Archive wraps the episode database.
type Archive struct {
	db *sql.DB
}

// EpisodeSummary is one archived episode row.
type EpisodeSummary struct {
	SessionID  string    `json:"session_id"`
	Goal       string    `json:"goal"`
	Status     string    `json:"status"`
	Steps      int       `json:"steps"`
	Events     int       `json:"events"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	session_id  TEXT PRIMARY KEY,
	goal        TEXT NOT NULL,
	status      TEXT NOT NULL,
	steps       INTEGER NOT NULL,
	events      INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	lattice     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS episode_events (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES episodes(session_id),
	type        TEXT NOT NULL,
	summary     TEXT,
	success     INTEGER NOT NULL,
	changed     INTEGER NOT NULL,
	timestamp   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episode_events_session ON episode_events(session_id);
`

// Open opens (creating if needed) the archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	logging.Store("episode archive open at %s", path)
	return &Archive{db: db}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveEpisode archives a finished lattice, full JSON plus queryable
// event rows, in one transaction.
func (a *Archive) SaveEpisode(ctx context.Context, l *lattice.Lattice, status string) error {
	blob, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lattice: %w", err)
	}

	steps := 0
	for _, task := range l.Nodes {
		steps += len(task.CompletedSteps)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO episodes (session_id, goal, status, steps, events, started_at, finished_at, lattice)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.SessionID, l.Goal, status, steps, len(l.EventLog), l.CreatedAt, l.UpdatedAt, string(blob))
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}

	for _, ev := range l.EventLog {
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO episode_events (id, session_id, type, summary, success, changed, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, l.SessionID, ev.Type, ev.Summary, boolToInt(ev.Success), boolToInt(ev.Changed), ev.Timestamp)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.Store("archived episode %s (%s, %d events)", l.SessionID, status, len(l.EventLog))
	return nil
}

// ListEpisodes returns recent episodes, newest first.
func (a *Archive) ListEpisodes(ctx context.Context, limit int) ([]EpisodeSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT session_id, goal, status, steps, events, started_at, finished_at
		FROM episodes ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpisodeSummary
	for rows.Next() {
		var s EpisodeSummary
		if err := rows.Scan(&s.SessionID, &s.Goal, &s.Status, &s.Steps, &s.Events, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadEpisode reconstructs an archived lattice by session id.
func (a *Archive) LoadEpisode(ctx context.Context, sessionID string) (*lattice.Lattice, error) {
	var blob string
	err := a.db.QueryRowContext(ctx,
		`SELECT lattice FROM episodes WHERE session_id = ?`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no archived episode %s", sessionID)
	}
	if err != nil {
		return nil, err
	}
	var l lattice.Lattice
	if err := json.Unmarshal([]byte(blob), &l); err != nil {
		return nil, fmt.Errorf("decode archived lattice: %w", err)
	}
	return &l, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
