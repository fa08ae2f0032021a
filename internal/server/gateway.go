package server

import (
	"context"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// Reply is the response posted back where a command was issued
type Reply struct {
	Title     string
	Text      string
	Footer    string
	Timestamp time.Time
}

// MessageHandler receives every message the gateway sees
type MessageHandler func(msg *domain.IncomingMessage)

// CommandHandler runs an operator command and returns the reply to post
type CommandHandler func(cmd *domain.Command) *Reply

// Gateway is a chat platform connection that delivers messages and commands
type Gateway interface {
	Name() string
	OnMessage(handler MessageHandler)
	OnCommand(handler CommandHandler)
	// ChannelMention renders a channel reference in the platform's markup
	ChannelMention(channelID string) string
	// Run blocks until ctx is done or the connection fails
	Run(ctx context.Context) error
}
