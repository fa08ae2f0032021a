package domain

import "time"

// QueueItem is a captured message waiting for classification
type QueueItem struct {
	MessageID   string    `json:"message_id"`
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Content     string    `json:"content"`
	Apps        []string  `json:"apps"`
	Timestamp   time.Time `json:"timestamp"`
	JumpURL     string    `json:"jump_url"`
}
