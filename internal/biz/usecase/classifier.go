package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
)

// defaultSummaryLength is the rune length of the fallback summary
const defaultSummaryLength = 100

// Classifier turns one captured message into a structured classification
type Classifier struct {
	llm       repo.LLMRepo
	prompts   Prompts
	products  []string
	maxTokens int
}

// NewClassifier creates a new classifier
func NewClassifier(llm repo.LLMRepo, prompts Prompts, products []string, maxTokens int) *Classifier {
	return &Classifier{
		llm:       llm,
		prompts:   prompts,
		products:  products,
		maxTokens: maxTokens,
	}
}

// Classify asks the model about item.
// Model errors are returned unchanged; an unreadable reply never is an error.
func (c *Classifier) Classify(ctx context.Context, item *domain.QueueItem) (domain.Classification, error) {
	reply, err := c.llm.Complete(ctx, domain.CompletionRequest{
		System:    c.prompts.ClassifierSystem(c.products),
		Prompt:    c.prompts.ClassifierUser(item.Apps, item.Content),
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return domain.Classification{}, err
	}
	return ParseClassification(reply, item.Content), nil
}

// classificationReply mirrors the JSON object the model is asked for
type classificationReply struct {
	Sentiment    string      `json:"sentiment"`
	FeedbackType string      `json:"feedback_type"`
	Summary      string      `json:"summary"`
	Actionable   interface{} `json:"actionable"`
}

// ParseClassification extracts a classification from a model reply.
// It tries the whole reply, then the object starting at the first brace, then falls back to defaults.
// A reply that decodes to no fields at all counts as unreadable.
func ParseClassification(reply, content string) domain.Classification {
	cleaned := stripCodeFence(strings.TrimSpace(reply))

	var parsed classificationReply
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil && !parsed.empty() {
		return parsed.toClassification()
	}

	if i := strings.Index(cleaned, "{"); i >= 0 {
		parsed = classificationReply{}
		dec := json.NewDecoder(strings.NewReader(cleaned[i:]))
		if err := dec.Decode(&parsed); err == nil && !parsed.empty() {
			return parsed.toClassification()
		}
	}

	return DefaultClassification(content)
}

// DefaultClassification is stored when the model reply cannot be read
func DefaultClassification(content string) domain.Classification {
	return domain.Classification{
		Sentiment:    domain.SentimentNeutral,
		FeedbackType: domain.FeedbackGeneral,
		Summary:      Truncate(content, defaultSummaryLength),
		Actionable:   false,
	}
}

func (r classificationReply) empty() bool {
	return r.Sentiment == "" && r.FeedbackType == "" && r.Summary == "" && r.Actionable == nil
}

func (r classificationReply) toClassification() domain.Classification {
	return domain.Classification{
		Sentiment:    domain.ParseSentiment(r.Sentiment),
		FeedbackType: domain.ParseFeedbackType(r.FeedbackType),
		Summary:      strings.TrimSpace(r.Summary),
		Actionable:   toBool(r.Actionable),
	}
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	case float64:
		return b != 0
	}
	return false
}

// stripCodeFence removes a surrounding ```json ... ``` block
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
