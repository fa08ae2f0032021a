package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/metrics"
)

// CaptureConfig contains capture configuration
type CaptureConfig struct {
	Channels         []string
	MaxContentLength int // in runes, 0 disables truncation
}

// CaptureUsecase decides which incoming messages enter the classification queue
type CaptureUsecase struct {
	detector *MentionDetector
	queue    repo.QueueRepo
	channels map[string]bool
	maxLen   int
	log      zerolog.Logger
}

// NewCaptureUsecase creates a new capture usecase
func NewCaptureUsecase(detector *MentionDetector, queue repo.QueueRepo, config CaptureConfig, logger zerolog.Logger) *CaptureUsecase {
	channels := make(map[string]bool, len(config.Channels))
	for _, id := range config.Channels {
		channels[id] = true
	}
	return &CaptureUsecase{
		detector: detector,
		queue:    queue,
		channels: channels,
		maxLen:   config.MaxContentLength,
		log:      logger.With().Str("component", "capture").Logger(),
	}
}

// IsMonitored reports whether a channel is watched
func (uc *CaptureUsecase) IsMonitored(channelID string) bool {
	return uc.channels[channelID]
}

// Capture queues msg when it passes the filters.
// It returns the queued item, or nil when the message was ignored.
func (uc *CaptureUsecase) Capture(ctx context.Context, msg *domain.IncomingMessage) (*domain.QueueItem, error) {
	if msg.AuthorIsBot || msg.IsDirect() {
		return nil, nil
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, nil
	}
	if !uc.channels[msg.ChannelID] {
		return nil, nil
	}

	apps := uc.detector.Detect(msg.Content)
	if len(apps) == 0 {
		return nil, nil
	}

	item := &domain.QueueItem{
		MessageID:   msg.ID,
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		AuthorID:    msg.AuthorID,
		AuthorName:  msg.AuthorName,
		Content:     Truncate(msg.Content, uc.maxLen),
		Apps:        apps,
		Timestamp:   msg.CreateTime,
		JumpURL:     msg.JumpURL,
	}

	evicted, err := uc.queue.Push(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue message %s: %w", msg.ID, err)
	}
	if evicted > 0 {
		metrics.Dropped.WithLabelValues(metrics.DropOverflow).Add(float64(evicted))
		uc.log.Warn().Int("evicted", evicted).Msg("queue full, oldest items dropped")
	}
	for _, app := range apps {
		metrics.Captured.WithLabelValues(app).Inc()
	}
	if n, err := uc.queue.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}

	uc.log.Info().
		Strs("apps", apps).
		Str("author", msg.AuthorName).
		Str("channel", msg.ChannelName).
		Msg("captured feedback")

	return item, nil
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
