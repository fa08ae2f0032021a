package repo

import (
	"context"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// FeedbackRepo is the classified-feedback repository interface
// Responsible for feedback persistence (SQLite)
type FeedbackRepo interface {
	// Upsert inserts a record or replaces the one with the same message ID
	Upsert(ctx context.Context, rec *domain.FeedbackRecord) (int64, error)

	// ListSince lists records with a message timestamp at or after since.
	// A non-empty app restricts the result to records mentioning it.
	ListSince(ctx context.Context, since time.Time, app string) ([]*domain.FeedbackRecord, error)

	// Stats aggregates records at or after since
	Stats(ctx context.Context, since time.Time) (*domain.FeedbackStats, error)

	// ListActionable lists actionable records, newest first
	ListActionable(ctx context.Context, since time.Time, limit int) ([]*domain.FeedbackRecord, error)

	// ListNegative lists negative and mixed records, newest first
	ListNegative(ctx context.Context, since time.Time, limit int) ([]*domain.FeedbackRecord, error)

	// ListByType lists records of one category, newest first
	ListByType(ctx context.Context, since time.Time, t domain.FeedbackType, limit int) ([]*domain.FeedbackRecord, error)
}
