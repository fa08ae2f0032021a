package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
	"github.com/devricklin/feedback-monitor/internal/conf"
	"github.com/devricklin/feedback-monitor/internal/data"
)

type stubLLM struct {
	reply string
}

func (s *stubLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return s.reply, nil
}

type stubChat struct {
	mu      sync.Mutex
	history []domain.ChatMessage
	sent    map[string]*domain.Digest
}

func (s *stubChat) FetchHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	return s.history, nil
}

func (s *stubChat) SendDigest(ctx context.Context, channelID string, digest *domain.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string]*domain.Digest)
	}
	s.sent[channelID] = digest
	return nil
}

func openRepos(t *testing.T) *data.Repositories {
	t.Helper()
	repos, err := data.NewRepositories(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before hour", time.Date(2026, 3, 2, 7, 30, 0, 0, ny), time.Date(2026, 3, 2, 8, 0, 0, 0, ny)},
		{"exactly at hour", time.Date(2026, 3, 2, 8, 0, 0, 0, ny), time.Date(2026, 3, 3, 8, 0, 0, 0, ny)},
		{"after hour", time.Date(2026, 3, 2, 9, 0, 0, 0, ny), time.Date(2026, 3, 3, 8, 0, 0, 0, ny)},
		{"month rollover", time.Date(2026, 3, 31, 23, 0, 0, 0, ny), time.Date(2026, 4, 1, 8, 0, 0, 0, ny)},
		{"utc input", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 8, 0, 0, 0, ny)},
		{"dst start", time.Date(2026, 3, 7, 9, 0, 0, 0, ny), time.Date(2026, 3, 8, 8, 0, 0, 0, ny)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, 8, ny)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}

	// across the spring-forward change the gap is 23 hours, not 24
	gap := NextRun(time.Date(2026, 3, 7, 9, 0, 0, 0, ny), 8, ny).Sub(time.Date(2026, 3, 7, 8, 0, 0, 0, ny))
	assert.Equal(t, 23*time.Hour, gap)
}

func newDigest(t *testing.T, chat *stubChat, defaultDest string) (*usecase.DigestUsecase, *data.Repositories) {
	repos := openRepos(t)
	uc := usecase.NewDigestUsecase(chat, &stubLLM{reply: "**URGENT**\nNothing notable today"}, conf.DefaultPromptsConfig(),
		repos.Settings, repos.DigestRuns, usecase.DigestConfig{
			Channels:           []string{"c1"},
			Products:           []string{"cora"},
			HistoryLimit:       100,
			Lookback:           24 * time.Hour,
			MaxTokens:          1500,
			DefaultDestination: defaultDest,
		}, zerolog.Nop())
	return uc, repos
}

func TestDigestScheduler_RunScheduled(t *testing.T) {
	now := time.Now()
	chat := &stubChat{history: []domain.ChatMessage{
		{ID: "1", ChannelID: "c1", ChannelName: "general", AuthorName: "user", Content: "cora is slow", CreateTime: now.Add(-time.Hour)},
	}}
	uc, repos := newDigest(t, chat, "dest")
	s := NewDigestScheduler(uc, 8, time.UTC, zerolog.Nop())

	run := s.RunScheduled(context.Background())
	require.NotNil(t, run)
	assert.Equal(t, domain.TriggerScheduled, run.Trigger)
	assert.Equal(t, domain.DigestStatusOK, run.Status)
	assert.Equal(t, 1, run.MessageCount)

	require.Contains(t, chat.sent, "dest")
	assert.Equal(t, "Daily Feedback Summary", chat.sent["dest"].Title)

	runs, err := repos.DigestRuns.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDigestScheduler_SkipsWithoutDestination(t *testing.T) {
	chat := &stubChat{}
	uc, repos := newDigest(t, chat, "")
	s := NewDigestScheduler(uc, 8, time.UTC, zerolog.Nop())

	assert.Nil(t, s.RunScheduled(context.Background()))
	assert.Empty(t, chat.sent)

	runs, err := repos.DigestRuns.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDigestScheduler_UsesUpdatedDestination(t *testing.T) {
	chat := &stubChat{}
	uc, _ := newDigest(t, chat, "dest")
	require.NoError(t, uc.SetDestination(context.Background(), "other"))

	s := NewDigestScheduler(uc, 8, time.UTC, zerolog.Nop())
	run := s.RunScheduled(context.Background())
	require.NotNil(t, run)
	assert.Equal(t, domain.DigestStatusEmpty, run.Status)
	assert.Contains(t, chat.sent, "other")
	assert.NotContains(t, chat.sent, "dest")
}

func TestDigestScheduler_StartStop(t *testing.T) {
	uc, _ := newDigest(t, &stubChat{}, "dest")
	s := NewDigestScheduler(uc, 8, time.UTC, zerolog.Nop())

	s.Start(context.Background())
	s.Stop()
}

func newBatch(t *testing.T, capacity int) (*usecase.BatchUsecase, *usecase.CaptureUsecase, *data.Repositories) {
	repos := openRepos(t)
	queue := data.NewMemoryQueue(capacity)
	classifier := usecase.NewClassifier(&stubLLM{
		reply: `{"sentiment":"negative","feedback_type":"bug","summary":"crash","actionable":true}`,
	}, conf.DefaultPromptsConfig(), []string{"cora"}, 1000)

	batch := usecase.NewBatchUsecase(queue, repos.Feedback, classifier, usecase.DefaultBatchConfig(), zerolog.Nop())
	capture := usecase.NewCaptureUsecase(usecase.NewMentionDetector([]string{"cora"}, false), queue,
		usecase.CaptureConfig{Channels: []string{"c1"}, MaxContentLength: 1000}, zerolog.Nop())
	return batch, capture, repos
}

func TestBatchProcessor_RunOnce(t *testing.T) {
	batch, capture, repos := newBatch(t, 10)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		item, err := capture.Capture(ctx, &domain.IncomingMessage{
			ID: id, GuildID: "g", ChannelID: "c1", AuthorName: "user", Content: "cora crashed", CreateTime: time.Now(),
		})
		require.NoError(t, err)
		require.NotNil(t, item)
	}

	p := NewBatchProcessor(batch, time.Hour, zerolog.Nop())
	result := p.RunOnce(ctx)
	assert.Equal(t, usecase.BatchDone, result.Outcome)
	assert.Equal(t, 2, result.Stored)

	stats, err := repos.Feedback.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Actionable)

	assert.Equal(t, usecase.BatchIdle, p.RunOnce(ctx).Outcome)
}

func TestBatchProcessor_Loop(t *testing.T) {
	batch, capture, repos := newBatch(t, 10)
	ctx := context.Background()

	_, err := capture.Capture(ctx, &domain.IncomingMessage{
		ID: "m1", GuildID: "g", ChannelID: "c1", AuthorName: "user", Content: "cora crashed", CreateTime: time.Now(),
	})
	require.NoError(t, err)

	p := NewBatchProcessor(batch, 10*time.Millisecond, zerolog.Nop())
	p.Start(ctx)
	defer p.Stop()

	assert.Eventually(t, func() bool {
		n, err := batch.QueueLen(ctx)
		if err != nil || n != 0 {
			return false
		}
		stats, err := repos.Feedback.Stats(ctx, time.Time{})
		return err == nil && stats.Total == 1
	}, 2*time.Second, 10*time.Millisecond)
}
