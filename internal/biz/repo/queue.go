package repo

import (
	"context"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// QueueRepo is the bounded capture queue.
// Implementations evict instead of blocking when full and report how many items were evicted.
type QueueRepo interface {
	// Push appends an item, evicting the oldest when over capacity
	Push(ctx context.Context, item *domain.QueueItem) (evicted int, err error)

	// PushFront puts items back at the head in their given order, evicting from the tail when over capacity
	PushFront(ctx context.Context, items []*domain.QueueItem) (evicted int, err error)

	// DrainAll atomically removes and returns every queued item
	DrainAll(ctx context.Context) ([]*domain.QueueItem, error)

	Len(ctx context.Context) (int, error)
}
