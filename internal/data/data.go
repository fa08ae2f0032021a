package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devricklin/feedback-monitor/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// schema is applied on every open; statements are idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		guild_id TEXT,
		channel_id TEXT,
		channel_name TEXT,
		author_id TEXT,
		author_name TEXT,
		content TEXT NOT NULL,
		apps_mentioned TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		feedback_type TEXT NOT NULL,
		summary TEXT,
		actionable INTEGER DEFAULT 0,
		message_timestamp INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON feedback(message_timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_sentiment ON feedback(sentiment)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_type ON feedback(feedback_type)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS digest_runs (
		id TEXT PRIMARY KEY,
		trigger_type TEXT NOT NULL,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		message_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		destination TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_digest_runs_created ON digest_runs(created_at)`,
}

// OpenDB opens the SQLite database at dbPath and creates missing tables
func OpenDB(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps SQLite from reporting SQLITE_BUSY between goroutines
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return db, nil
}

// Repositories contains all persistence repositories
type Repositories struct {
	Feedback   repo.FeedbackRepo
	Settings   repo.SettingsRepo
	DigestRuns repo.DigestRunRepo

	db *sql.DB
}

// NewRepositories opens the database and creates all repositories over it
func NewRepositories(dbPath string) (*Repositories, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Feedback:   NewFeedbackRepo(db),
		Settings:   NewSettingsRepo(db),
		DigestRuns: NewDigestRunRepo(db),
		db:         db,
	}, nil
}

// Close closes the shared database
func (r *Repositories) Close() error {
	return r.db.Close()
}
