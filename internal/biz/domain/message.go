package domain

import (
	"strings"
	"time"
)

// IncomingMessage is a message pushed by the chat gateway
type IncomingMessage struct {
	ID          string
	GuildID     string // empty for direct messages
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	Content     string
	CreateTime  time.Time
	JumpURL     string
}

// IsDirect reports whether the message was sent outside a guild
func (m *IncomingMessage) IsDirect() bool {
	return m.GuildID == ""
}

// ChatMessage is a message read back from channel history
type ChatMessage struct {
	ID          string
	ChannelID   string
	ChannelName string
	AuthorName  string
	IsBot       bool
	Content     string
	CreateTime  time.Time
	JumpURL     string
}

// AuthorHandle returns the author name without a "#discriminator" suffix
func (m *ChatMessage) AuthorHandle() string {
	if i := strings.Index(m.AuthorName, "#"); i >= 0 {
		return m.AuthorName[:i]
	}
	return m.AuthorName
}

// IsAfter checks if the message is after the specified time
func (m *ChatMessage) IsAfter(t time.Time) bool {
	return m.CreateTime.After(t)
}

// Command is an operator command received through the chat gateway
type Command struct {
	Name      string // "summary" or "setchannel"
	ChannelID string // where the command was issued
	TargetID  string // setchannel argument, empty means the current channel
	UserName  string
}
