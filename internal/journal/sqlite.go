// Package journal keeps the history of report generations in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jbatonnet/Rboard/internal/report"
)

// Generation outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// timeLayout is fixed width so that text order is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one finished generation.
type Entry struct {
	ID         string     `json:"id"`
	Key        report.Key `json:"-"`
	Category   string     `json:"category"`
	Slug       string     `json:"slug"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Artifact   string     `json:"artifact,omitempty"`
	Forced     bool       `json:"forced"`
}

// Duration is how long the generation ran.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is a SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it when needed. ":memory:" opens
// a private in-memory journal.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		slug TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		artifact TEXT,
		forced INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_generations_report ON generations(category, slug, finished_at);
	CREATE INDEX IF NOT EXISTS idx_generations_finished ON generations(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e. A missing ID is generated.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	forced := 0
	if e.Forced {
		forced = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (id, category, slug, started_at, finished_at, status, error, artifact, forced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Key.Category, e.Key.Slug,
		e.StartedAt.UTC().Format(timeLayout), e.FinishedAt.UTC().Format(timeLayout),
		e.Status, e.Error, e.Artifact, forced,
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A nil key returns entries
// of every report.
func (s *Store) Recent(ctx context.Context, key *report.Key, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, category, slug, started_at, finished_at, status, error, artifact, forced FROM generations`
	var args []any
	if key != nil {
		query += ` WHERE category = ? AND slug = ?`
		args = append(args, key.Category, key.Slug)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
			errText, artifact sql.NullString
			forced            int
		)
		if err := rows.Scan(&e.ID, &e.Key.Category, &e.Key.Slug, &started, &finished, &e.Status, &errText, &artifact, &forced); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		e.Category, e.Slug = e.Key.Category, e.Key.Slug
		e.StartedAt, _ = time.Parse(timeLayout, started)
		e.FinishedAt, _ = time.Parse(timeLayout, finished)
		e.Error = errText.String
		e.Artifact = artifact.String
		e.Forced = forced != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return entries, nil
}

// Purge removes entries that finished before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE finished_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge generations: %w", err)
	}
	return res.RowsAffected()
}
