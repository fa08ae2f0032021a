package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/metrics"
)

// BatchConfig contains batch processing configuration
type BatchConfig struct {
	RetryCeiling    int           // rate-limit retries before a batch is dropped
	APIErrorRequeue int           // items kept after a generic API error
	BackoffUnit     time.Duration // one unit of 2^n + jitter
}

// DefaultBatchConfig returns default batch configuration
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		RetryCeiling:    3,
		APIErrorRequeue: 20,
		BackoffUnit:     time.Second,
	}
}

// Batch outcomes
const (
	BatchIdle           = "idle"
	BatchDone           = "done"
	BatchRateLimited    = "rate_limited"
	BatchRetryExhausted = "retry_exhausted"
	BatchAPIError       = "api_error"
	BatchCanceled       = "canceled"
)

// BatchResult describes one drain
type BatchResult struct {
	Outcome  string
	Drained  int
	Stored   int
	Dropped  int
	Requeued int
	Backoff  time.Duration
}

// BatchUsecase drains the capture queue, classifies every item and stores the results
type BatchUsecase struct {
	queue      repo.QueueRepo
	feedback   repo.FeedbackRepo
	classifier *Classifier
	config     BatchConfig
	log        zerolog.Logger

	// Sleep and Jitter are replaceable in tests
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64

	mu          sync.Mutex
	retryCount  int
	lastBackoff time.Duration
}

// NewBatchUsecase creates a new batch usecase
func NewBatchUsecase(queue repo.QueueRepo, feedback repo.FeedbackRepo, classifier *Classifier, config BatchConfig, logger zerolog.Logger) *BatchUsecase {
	return &BatchUsecase{
		queue:      queue,
		feedback:   feedback,
		classifier: classifier,
		config:     config,
		log:        logger.With().Str("component", "batch").Logger(),
		Sleep:      sleepContext,
		Jitter:     rand.Float64,
	}
}

// RetryCount returns the consecutive rate-limit counter
func (uc *BatchUsecase) RetryCount() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.retryCount
}

// LastBackoff returns the wait applied after the most recent rate limit
func (uc *BatchUsecase) LastBackoff() time.Duration {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.lastBackoff
}

// QueueLen returns the number of queued items
func (uc *BatchUsecase) QueueLen(ctx context.Context) (int, error) {
	return uc.queue.Len(ctx)
}

// ProcessOnce performs one drain-classify-store pass.
// Callers must not run it concurrently.
func (uc *BatchUsecase) ProcessOnce(ctx context.Context) (BatchResult, error) {
	items, err := uc.queue.DrainAll(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	defer uc.updateDepth(ctx)

	if len(items) == 0 {
		return BatchResult{Outcome: BatchIdle}, nil
	}

	uc.log.Info().Int("items", len(items)).Msg("processing batch")

	result := BatchResult{Drained: len(items)}
	records := make([]*domain.FeedbackRecord, 0, len(items))

	for i, item := range items {
		c, err := uc.classifier.Classify(ctx, item)
		if err == nil {
			records = append(records, domain.NewFeedbackRecord(item, c))
			continue
		}

		switch {
		case errors.Is(err, domain.ErrRateLimited):
			return uc.handleRateLimit(ctx, items, result)
		case errors.Is(err, domain.ErrAPI):
			return uc.handleAPIError(ctx, items, err, result)
		case ctx.Err() != nil:
			// shutting down: keep what was classified, return the rest to the queue
			uc.store(context.WithoutCancel(ctx), records, &result)
			result.Requeued = uc.requeue(context.WithoutCancel(ctx), items[i:])
			result.Outcome = BatchCanceled
			return result, ctx.Err()
		default:
			result.Dropped++
			metrics.Dropped.WithLabelValues(metrics.DropClassifyFailed).Inc()
			uc.log.Error().Err(err).Str("message_id", item.MessageID).Msg("classification failed, item dropped")
		}
	}

	uc.store(ctx, records, &result)

	uc.mu.Lock()
	uc.retryCount = 0
	uc.mu.Unlock()

	result.Outcome = BatchDone
	uc.log.Info().Int("stored", result.Stored).Int("dropped", result.Dropped).Msg("batch complete")
	return result, nil
}

func (uc *BatchUsecase) store(ctx context.Context, records []*domain.FeedbackRecord, result *BatchResult) {
	for _, rec := range records {
		if _, err := uc.feedback.Upsert(ctx, rec); err != nil {
			metrics.StoreFailures.Inc()
			uc.log.Error().Err(err).Str("message_id", rec.MessageID).Msg("failed to store record")
			continue
		}
		result.Stored++
		metrics.Classified.WithLabelValues(string(rec.Sentiment)).Inc()
	}
}

// handleRateLimit returns the whole batch to the front and backs off, or drops it past the ceiling
func (uc *BatchUsecase) handleRateLimit(ctx context.Context, items []*domain.QueueItem, result BatchResult) (BatchResult, error) {
	uc.mu.Lock()
	uc.retryCount++
	attempt := uc.retryCount
	if attempt > uc.config.RetryCeiling {
		uc.retryCount = 0
	}
	uc.mu.Unlock()

	if attempt > uc.config.RetryCeiling {
		result.Dropped += len(items)
		result.Outcome = BatchRetryExhausted
		metrics.Dropped.WithLabelValues(metrics.DropRetryExhausted).Add(float64(len(items)))
		uc.log.Error().Int("items", len(items)).Int("retries", attempt-1).Msg("rate limit retries exhausted, batch dropped")
		return result, nil
	}

	metrics.RateLimitRetries.Inc()
	result.Requeued = uc.requeue(ctx, items)
	result.Outcome = BatchRateLimited

	wait := uc.backoff(attempt)
	result.Backoff = wait
	uc.mu.Lock()
	uc.lastBackoff = wait
	uc.mu.Unlock()

	uc.log.Warn().Int("attempt", attempt).Dur("wait", wait).Msg("rate limited, batch requeued")
	if err := uc.Sleep(ctx, wait); err != nil {
		return result, err
	}
	return result, nil
}

// handleAPIError keeps the head of the batch and drops the rest; the retry counter is left alone
func (uc *BatchUsecase) handleAPIError(ctx context.Context, items []*domain.QueueItem, cause error, result BatchResult) (BatchResult, error) {
	limit := uc.config.APIErrorRequeue
	if limit < 0 {
		limit = 0
	}
	keep := items
	if len(keep) > limit {
		keep = items[:limit]
	}
	dropped := len(items) - len(keep)

	result.Requeued = uc.requeue(ctx, keep)
	result.Dropped += dropped
	result.Outcome = BatchAPIError
	if dropped > 0 {
		metrics.Dropped.WithLabelValues(metrics.DropAPIErrorCap).Add(float64(dropped))
	}

	uc.log.Error().Err(cause).Int("requeued", len(keep)).Int("dropped", dropped).Msg("api error, batch partially requeued")
	return result, nil
}

// requeue puts items back at the head of the queue and returns how many were pushed
func (uc *BatchUsecase) requeue(ctx context.Context, items []*domain.QueueItem) int {
	if len(items) == 0 {
		return 0
	}
	evicted, err := uc.queue.PushFront(ctx, items)
	if err != nil {
		metrics.Dropped.WithLabelValues(metrics.DropOverflow).Add(float64(len(items)))
		uc.log.Error().Err(err).Int("items", len(items)).Msg("failed to requeue batch")
		return 0
	}
	if evicted > 0 {
		metrics.Dropped.WithLabelValues(metrics.DropOverflow).Add(float64(evicted))
		uc.log.Warn().Int("evicted", evicted).Msg("queue full while requeueing")
	}
	return len(items)
}

// backoff returns (2^attempt + jitter) units
func (uc *BatchUsecase) backoff(attempt int) time.Duration {
	units := math.Pow(2, float64(attempt)) + uc.Jitter()
	return time.Duration(units * float64(uc.config.BackoffUnit))
}

func (uc *BatchUsecase) updateDepth(ctx context.Context) {
	if n, err := uc.queue.Len(context.WithoutCancel(ctx)); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
