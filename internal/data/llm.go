package data

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/metrics"
)

// llmTimeout bounds a single model call
const llmTimeout = 90 * time.Second

// LLMOptions configures a model repository
type LLMOptions struct {
	Provider          string // anthropic or openai
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerMinute int
}

// NewLLMRepo creates the model repository selected by opts.Provider
func NewLLMRepo(opts LLMOptions) (repo.LLMRepo, error) {
	var llm repo.LLMRepo
	switch opts.Provider {
	case "anthropic", "":
		llm = NewAnthropicRepo(opts.APIKey, opts.BaseURL, opts.Model)
	case "openai":
		llm = NewOpenAIRepo(opts.APIKey, opts.BaseURL, opts.Model)
	default:
		return nil, errors.New("unsupported llm provider: " + opts.Provider)
	}
	if opts.RequestsPerMinute > 0 {
		llm = NewRateLimitedLLM(llm, opts.RequestsPerMinute)
	}
	return llm, nil
}

// rateLimitedLLM paces calls to the wrapped repository
type rateLimitedLLM struct {
	inner   repo.LLMRepo
	limiter *rate.Limiter
}

// NewRateLimitedLLM allows at most perMinute calls per minute through to inner
func NewRateLimitedLLM(inner repo.LLMRepo, perMinute int) repo.LLMRepo {
	return &rateLimitedLLM{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *rateLimitedLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.Complete(ctx, req)
}

// observe records the latency and outcome of one model call
func observe(provider string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		outcome = "rate_limited"
	case err != nil:
		outcome = "error"
	}
	metrics.LLMRequests.WithLabelValues(provider, outcome).Observe(time.Since(start).Seconds())
}
