package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

// settingsRepo implements the settings repository
type settingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo creates a new settings repository
func NewSettingsRepo(db *sql.DB) repo.SettingsRepo {
	return &settingsRepo{db: db}
}

// Get returns the value stored under key
func (r *settingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key
func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// digestRunRepo implements the digest run repository
type digestRunRepo struct {
	db *sql.DB
}

// NewDigestRunRepo creates a new digest run repository
func NewDigestRunRepo(db *sql.DB) repo.DigestRunRepo {
	return &digestRunRepo{db: db}
}

// Record saves a digest run
func (r *digestRunRepo) Record(ctx context.Context, run *domain.DigestRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO digest_runs (id, trigger_type, window_start, window_end, message_count, status, error, destination, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Trigger), run.WindowStart.UnixMilli(), run.WindowEnd.UnixMilli(),
		run.MessageCount, run.Status, run.Error, run.Destination, run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record digest run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first
func (r *digestRunRepo) List(ctx context.Context, limit int) ([]*domain.DigestRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger_type, window_start, window_end, message_count, status, error, destination, created_at
		FROM digest_runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.DigestRun
	for rows.Next() {
		var run domain.DigestRun
		var trigger string
		var errText, destination sql.NullString
		var start, end, created int64
		if err := rows.Scan(&run.ID, &trigger, &start, &end, &run.MessageCount, &run.Status, &errText, &destination, &created); err != nil {
			return nil, fmt.Errorf("failed to scan digest run: %w", err)
		}
		run.Trigger = domain.Trigger(trigger)
		run.WindowStart = time.UnixMilli(start)
		run.WindowEnd = time.UnixMilli(end)
		run.CreatedAt = time.UnixMilli(created)
		run.Error = errText.String
		run.Destination = destination.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
