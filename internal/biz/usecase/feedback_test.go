package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

func TestFeedbackUsecase_Windows(t *testing.T) {
	repo := newMockFeedbackRepo()
	uc := NewFeedbackUsecase(repo)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	uc.Now = func() time.Time { return now }
	ctx := context.Background()

	_, err := uc.Stats(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), repo.since)

	_, err = uc.Actionable(ctx, 0, 0)
	require.NoError(t, err)
	assert.True(t, repo.since.IsZero())
	assert.Equal(t, DefaultListLimit, repo.limit)

	_, err = uc.Negative(ctx, time.Hour, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, repo.limit)
}

func TestFeedbackUsecase_ByTypeValidates(t *testing.T) {
	uc := NewFeedbackUsecase(newMockFeedbackRepo())

	_, err := uc.ByType(context.Background(), 0, "feature_request", 10)
	assert.NoError(t, err)

	_, err = uc.ByType(context.Background(), 0, "rant", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
