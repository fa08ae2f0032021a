package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

// openaiRepo implements the model repository over any OpenAI-compatible endpoint (OpenAI, Moonshot, ...)
type openaiRepo struct {
	client *openai.Client
	model  string
}

// NewOpenAIRepo creates an OpenAI-compatible repository
func NewOpenAIRepo(apiKey, baseURL, model string) repo.LLMRepo {
	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &openaiRepo{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Complete sends one chat completion
func (r *openaiRepo) Complete(ctx context.Context, req domain.CompletionRequest) (reply string, err error) {
	start := time.Now()
	defer func() { observe("openai", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     r.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices: %w", domain.ErrAPI)
	}

	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps client errors onto the domain sentinels
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("chat completion: %v: %w", err, domain.ErrRateLimited)
		}
		return fmt.Errorf("chat completion: %v: %w", err, domain.ErrAPI)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("chat completion: %v: %w", err, domain.ErrRateLimited)
		}
		return fmt.Errorf("chat completion: %v: %w", err, domain.ErrAPI)
	}
	return fmt.Errorf("chat completion: %w", err)
}
