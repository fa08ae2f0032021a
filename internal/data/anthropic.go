package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// anthropicRepo implements the model repository over the Messages API
type anthropicRepo struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicRepo creates an Anthropic repository.
// SDK retries are disabled because the batch processor owns the backoff policy.
func NewAnthropicRepo(apiKey, baseURL, model string) repo.LLMRepo {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)
	return &anthropicRepo{
		client: &client,
		model:  anthropic.Model(model),
	}
}

// Complete sends one request; the system prompt is marked cacheable
func (r *anthropicRepo) Complete(ctx context.Context, req domain.CompletionRequest) (reply string, err error) {
	start := time.Now()
	defer func() { observe("anthropic", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         req.System,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in anthropic response: %w", domain.ErrAPI)
	}
	return sb.String(), nil
}

// classifyAnthropicError maps SDK errors onto the domain sentinels
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("anthropic: %v: %w", err, domain.ErrRateLimited)
		}
		return fmt.Errorf("anthropic: %v: %w", err, domain.ErrAPI)
	}
	return fmt.Errorf("anthropic request failed: %w", err)
}
