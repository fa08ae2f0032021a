package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

// DefaultListLimit caps list queries when no limit is given
const DefaultListLimit = 50

// FeedbackUsecase is the read side over stored classifications
type FeedbackUsecase struct {
	feedbackRepo repo.FeedbackRepo

	// Now is replaceable in tests
	Now func() time.Time
}

// NewFeedbackUsecase creates a new feedback usecase
func NewFeedbackUsecase(feedbackRepo repo.FeedbackRepo) *FeedbackUsecase {
	return &FeedbackUsecase{
		feedbackRepo: feedbackRepo,
		Now:          time.Now,
	}
}

// Since converts a lookback window to a lower bound; zero or negative means everything
func (uc *FeedbackUsecase) Since(window time.Duration) time.Time {
	if window <= 0 {
		return time.Time{}
	}
	return uc.Now().Add(-window)
}

// Stats aggregates the records inside window
func (uc *FeedbackUsecase) Stats(ctx context.Context, window time.Duration) (*domain.FeedbackStats, error) {
	return uc.feedbackRepo.Stats(ctx, uc.Since(window))
}

// List returns records inside window, optionally restricted to one app
func (uc *FeedbackUsecase) List(ctx context.Context, window time.Duration, app string) ([]*domain.FeedbackRecord, error) {
	return uc.feedbackRepo.ListSince(ctx, uc.Since(window), strings.ToLower(strings.TrimSpace(app)))
}

// Actionable returns actionable records, newest first
func (uc *FeedbackUsecase) Actionable(ctx context.Context, window time.Duration, limit int) ([]*domain.FeedbackRecord, error) {
	return uc.feedbackRepo.ListActionable(ctx, uc.Since(window), normalizeLimit(limit))
}

// Negative returns negative and mixed records, newest first
func (uc *FeedbackUsecase) Negative(ctx context.Context, window time.Duration, limit int) ([]*domain.FeedbackRecord, error) {
	return uc.feedbackRepo.ListNegative(ctx, uc.Since(window), normalizeLimit(limit))
}

// ByType returns records of one category, newest first
func (uc *FeedbackUsecase) ByType(ctx context.Context, window time.Duration, feedbackType string, limit int) ([]*domain.FeedbackRecord, error) {
	if !domain.IsValidFeedbackType(feedbackType) {
		return nil, fmt.Errorf("%w: unknown feedback type %q", domain.ErrInvalidArgument, feedbackType)
	}
	return uc.feedbackRepo.ListByType(ctx, uc.Since(window), domain.FeedbackType(feedbackType), normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
