package domain

import (
	"strings"
	"time"
)

// Sentiment is the classifier's tone verdict for one message
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// Sentiments lists every accepted sentiment in display order
var Sentiments = []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed}

// ParseSentiment normalises s, falling back to neutral
func ParseSentiment(s string) Sentiment {
	v := Sentiment(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sentiments {
		if v == known {
			return v
		}
	}
	return SentimentNeutral
}

// FeedbackType is the classifier's category for one message
type FeedbackType string

const (
	FeedbackBug            FeedbackType = "bug"
	FeedbackFeatureRequest FeedbackType = "feature_request"
	FeedbackPraise         FeedbackType = "praise"
	FeedbackComplaint      FeedbackType = "complaint"
	FeedbackQuestion       FeedbackType = "question"
	FeedbackGeneral        FeedbackType = "general"
)

// FeedbackTypes lists every accepted category
var FeedbackTypes = []FeedbackType{
	FeedbackBug, FeedbackFeatureRequest, FeedbackPraise,
	FeedbackComplaint, FeedbackQuestion, FeedbackGeneral,
}

// ParseFeedbackType normalises s, falling back to general.
// Hyphens and spaces are accepted in place of underscores ("feature request").
func ParseFeedbackType(s string) FeedbackType {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	for _, known := range FeedbackTypes {
		if FeedbackType(v) == known {
			return known
		}
	}
	return FeedbackGeneral
}

// IsValidFeedbackType reports whether s names a known category exactly
func IsValidFeedbackType(s string) bool {
	for _, known := range FeedbackTypes {
		if FeedbackType(s) == known {
			return true
		}
	}
	return false
}

// Classification is the structured result extracted from a model reply
type Classification struct {
	Sentiment    Sentiment
	FeedbackType FeedbackType
	Summary      string
	Actionable   bool
}

// FeedbackRecord is one classified message, keyed by MessageID
type FeedbackRecord struct {
	ID               int64        `json:"id"`
	MessageID        string       `json:"message_id"`
	GuildID          string       `json:"guild_id"`
	ChannelID        string       `json:"channel_id"`
	ChannelName      string       `json:"channel_name"`
	AuthorID         string       `json:"author_id"`
	AuthorName       string       `json:"author_name"`
	Content          string       `json:"content"`
	AppsMentioned    []string     `json:"apps_mentioned"`
	Sentiment        Sentiment    `json:"sentiment"`
	FeedbackType     FeedbackType `json:"feedback_type"`
	Summary          string       `json:"summary"`
	Actionable       bool         `json:"actionable"`
	MessageTimestamp time.Time    `json:"message_timestamp"`
	CreatedAt        time.Time    `json:"created_at"`
}

// NewFeedbackRecord combines a captured item with its classification
func NewFeedbackRecord(item *QueueItem, c Classification) *FeedbackRecord {
	apps := make([]string, len(item.Apps))
	copy(apps, item.Apps)
	return &FeedbackRecord{
		MessageID:        item.MessageID,
		GuildID:          item.GuildID,
		ChannelID:        item.ChannelID,
		ChannelName:      item.ChannelName,
		AuthorID:         item.AuthorID,
		AuthorName:       item.AuthorName,
		Content:          item.Content,
		AppsMentioned:    apps,
		Sentiment:        c.Sentiment,
		FeedbackType:     c.FeedbackType,
		Summary:          c.Summary,
		Actionable:       c.Actionable,
		MessageTimestamp: item.Timestamp,
	}
}

// IsNegative reports whether the record counts toward negative feedback
func (r *FeedbackRecord) IsNegative() bool {
	return r.Sentiment == SentimentNegative || r.Sentiment == SentimentMixed
}

// FeedbackStats aggregates records over a window.
// A record mentioning several apps is counted once under each of them in ByApp.
type FeedbackStats struct {
	Since       time.Time            `json:"since"`
	Total       int                  `json:"total"`
	Actionable  int                  `json:"actionable_count"`
	BySentiment map[Sentiment]int    `json:"by_sentiment"`
	ByType      map[FeedbackType]int `json:"by_type"`
	ByApp       map[string]int       `json:"by_app"`
}

// NewFeedbackStats returns empty stats with initialised maps
func NewFeedbackStats(since time.Time) *FeedbackStats {
	return &FeedbackStats{
		Since:       since,
		BySentiment: make(map[Sentiment]int),
		ByType:      make(map[FeedbackType]int),
		ByApp:       make(map[string]int),
	}
}
