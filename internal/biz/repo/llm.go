package repo

import (
	"context"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// LLMRepo is the language-model repository interface.
// Implementations wrap throttling as domain.ErrRateLimited and other provider failures as domain.ErrAPI.
type LLMRepo interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}
