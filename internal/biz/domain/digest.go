package domain

import "time"

// Trigger identifies what started a digest run
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Title returns the heading used when a digest from this trigger is delivered
func (t Trigger) Title() string {
	if t == TriggerScheduled {
		return "Daily Feedback Summary"
	}
	return "Feedback Summary"
}

// Digest is the narrative summary delivered to the destination channel
type Digest struct {
	Title        string
	Text         string
	MessageCount int
	GeneratedAt  time.Time
}

// DigestRun records one execution of the digest generator
type DigestRun struct {
	ID           string    `json:"id"`
	Trigger      Trigger   `json:"trigger"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	MessageCount int       `json:"message_count"`
	Status       string    `json:"status"` // ok, empty, error
	Error        string    `json:"error,omitempty"`
	Destination  string    `json:"destination,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	DigestStatusOK    = "ok"
	DigestStatusEmpty = "empty"
	DigestStatusError = "error"
)

// CompletionRequest is one synchronous model call
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}
