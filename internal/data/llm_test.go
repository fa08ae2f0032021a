package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

func TestAnthropicRepo_Complete(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "{\"sentiment\":\"positive\"}"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	llm := NewAnthropicRepo("key", server.URL, "")
	reply, err := llm.Complete(context.Background(), domain.CompletionRequest{System: "sys", Prompt: "hi", MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, `{"sentiment":"positive"}`, reply)
	assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
	assert.Equal(t, float64(100), body["max_tokens"])
	system := body["system"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "sys", system["text"])
	assert.NotNil(t, system["cache_control"])
}

func TestAnthropicRepo_ErrorClasses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusInternalServerError, domain.ErrAPI},
		{http.StatusBadRequest, domain.ErrAPI},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"type":"error","error":{"type":"some_error","message":"nope"}}`))
			}))
			defer server.Close()

			_, err := NewAnthropicRepo("key", server.URL, "m").Complete(context.Background(), domain.CompletionRequest{Prompt: "hi", MaxTokens: 10})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAIRepo_Complete(t *testing.T) {
	var req map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	llm := NewOpenAIRepo("key", server.URL+"/v1", "moonshot-v1-8k")
	reply, err := llm.Complete(context.Background(), domain.CompletionRequest{System: "sys", Prompt: "hi", MaxTokens: 50})
	require.NoError(t, err)

	assert.Equal(t, "done", reply)
	assert.Equal(t, "moonshot-v1-8k", req["model"])
	assert.Len(t, req["messages"], 2)
}

func TestOpenAIRepo_ErrorClasses(t *testing.T) {
	for status, want := range map[int]error{
		http.StatusTooManyRequests:    domain.ErrRateLimited,
		http.StatusServiceUnavailable: domain.ErrAPI,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"slow down","type":"requests","code":null}}`))
		}))

		_, err := NewOpenAIRepo("key", server.URL+"/v1", "m").Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
		assert.ErrorIs(t, err, want, "status %d", status)
		server.Close()
	}
}

type countingLLM struct{ calls int }

func (c *countingLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	c.calls++
	return "ok", nil
}

func TestRateLimitedLLM_HonoursContext(t *testing.T) {
	inner := &countingLLM{}
	llm := NewRateLimitedLLM(inner, 1)

	_, err := llm.Complete(context.Background(), domain.CompletionRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = llm.Complete(ctx, domain.CompletionRequest{})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestNewLLMRepo(t *testing.T) {
	_, err := NewLLMRepo(LLMOptions{Provider: "bard"})
	assert.Error(t, err)

	llm, err := NewLLMRepo(LLMOptions{Provider: "openai", APIKey: "k", RequestsPerMinute: 10})
	require.NoError(t, err)
	assert.IsType(t, &rateLimitedLLM{}, llm)
}
