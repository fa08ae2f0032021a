package repo

import (
	"context"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// Setting keys
const (
	SettingLastDigestRun     = "last_digest_run"
	SettingDigestDestination = "digest_destination"
)

// SettingsRepo stores process state that must survive restarts
type SettingsRepo interface {
	// Get returns domain.ErrNotFound for unknown keys
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// DigestRunRepo keeps the history of digest executions
type DigestRunRepo interface {
	Record(ctx context.Context, run *domain.DigestRun) error

	// List returns the most recent runs, newest first
	List(ctx context.Context, limit int) ([]*domain.DigestRun, error)
}
