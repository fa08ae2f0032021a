package data

import (
	"context"
	"sync"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

// memoryQueue is a bounded in-process queue; its contents are lost on restart
type memoryQueue struct {
	mu       sync.Mutex
	items    []*domain.QueueItem
	capacity int
}

// NewMemoryQueue creates a queue holding at most capacity items
func NewMemoryQueue(capacity int) repo.QueueRepo {
	return &memoryQueue{capacity: capacity}
}

func (q *memoryQueue) Push(ctx context.Context, item *domain.QueueItem) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	evicted := 0
	if over := len(q.items) - q.capacity; over > 0 {
		evicted = over
		q.items = append([]*domain.QueueItem(nil), q.items[over:]...)
	}
	return evicted, nil
}

func (q *memoryQueue) PushFront(ctx context.Context, items []*domain.QueueItem) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]*domain.QueueItem, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)

	evicted := 0
	if over := len(merged) - q.capacity; over > 0 {
		evicted = over
		merged = merged[:q.capacity]
	}
	q.items = merged
	return evicted, nil
}

func (q *memoryQueue) DrainAll(ctx context.Context) ([]*domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items, nil
}

func (q *memoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
