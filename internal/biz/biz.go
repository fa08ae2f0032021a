package biz

import (
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Capture  *usecase.CaptureUsecase
	Batch    *usecase.BatchUsecase
	Digest   *usecase.DigestUsecase
	Feedback *usecase.FeedbackUsecase
}
