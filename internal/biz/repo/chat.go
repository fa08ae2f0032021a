package repo

import (
	"context"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// ChatRepo is the chat platform repository interface
// Responsible for reading channel history and delivering digests
type ChatRepo interface {
	// FetchHistory returns up to limit messages posted after the given time, oldest first
	FetchHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error)

	// SendDigest posts a formatted digest to a channel
	SendDigest(ctx context.Context, channelID string, digest *domain.Digest) error
}
