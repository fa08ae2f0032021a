package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/metrics"
)

// redisQueue keeps the queue in one Redis list, oldest item at the head
type redisQueue struct {
	client   *redis.Client
	key      string
	capacity int
}

// NewRedisClient connects to redisURL, accepting either a redis:// URL or host:port
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisQueue creates a queue stored under key
func NewRedisQueue(client *redis.Client, key string, capacity int) repo.QueueRepo {
	return &redisQueue{client: client, key: key, capacity: capacity}
}

func (q *redisQueue) Push(ctx context.Context, item *domain.QueueItem) (int, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("failed to encode queue item: %w", err)
	}

	var push *redis.IntCmd
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, q.key, payload)
		pipe.LTrim(ctx, q.key, int64(-q.capacity), -1)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to push queue item: %w", err)
	}
	return overflow(push.Val(), q.capacity), nil
}

func (q *redisQueue) PushFront(ctx context.Context, items []*domain.QueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	// LPUSH prepends one value at a time, so the last item goes first
	values := make([]interface{}, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		payload, err := json.Marshal(items[i])
		if err != nil {
			return 0, fmt.Errorf("failed to encode queue item: %w", err)
		}
		values = append(values, payload)
	}

	var push *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.LPush(ctx, q.key, values...)
		pipe.LTrim(ctx, q.key, 0, int64(q.capacity-1))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue items: %w", err)
	}
	return overflow(push.Val(), q.capacity), nil
}

func (q *redisQueue) DrainAll(ctx context.Context) ([]*domain.QueueItem, error) {
	var lrange *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, q.key, 0, -1)
		pipe.Del(ctx, q.key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain queue: %w", err)
	}

	return decodeQueueItems(lrange.Val()), nil
}

// decodeQueueItems decodes stored entries in order; corrupt entries are logged, counted and skipped
func decodeQueueItems(raw []string) []*domain.QueueItem {
	items := make([]*domain.QueueItem, 0, len(raw))
	for _, s := range raw {
		var item domain.QueueItem
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			metrics.Dropped.WithLabelValues(metrics.DropCorrupt).Inc()
			log.Warn().Str("component", "queue").Err(err).Int("bytes", len(s)).Msg("dropping corrupt queue entry")
			continue
		}
		items = append(items, &item)
	}
	return items
}

func (q *redisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return int(n), nil
}

func overflow(length int64, capacity int) int {
	if over := int(length) - capacity; over > 0 {
		return over
	}
	return 0
}
