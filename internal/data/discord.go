package data

import (
	"context"
	"fmt"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/infra/discord"
)

// discordClient is the part of the Discord client the repository needs
type discordClient interface {
	ChannelHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]*discord.Message, error)
	SendEmbed(ctx context.Context, channelID string, embed *discord.Embed) error
}

// discordRepo implements the chat repository on Discord channels
type discordRepo struct {
	client discordClient
}

// NewDiscordRepo creates a new Discord repository
func NewDiscordRepo(client discordClient) repo.ChatRepo {
	return &discordRepo{client: client}
}

// FetchHistory reads a channel's messages after the given time
func (r *discordRepo) FetchHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	msgs, err := r.client.ChannelHistory(ctx, channelID, after, limit)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, domain.ChatMessage{
			ID:          m.ID,
			ChannelID:   m.ChannelID,
			ChannelName: m.ChannelName,
			AuthorName:  m.AuthorName,
			IsBot:       m.AuthorIsBot,
			Content:     m.Content,
			CreateTime:  m.Timestamp,
			JumpURL:     m.JumpURL(),
		})
	}
	return result, nil
}

// SendDigest posts the digest as an embed
func (r *discordRepo) SendDigest(ctx context.Context, channelID string, digest *domain.Digest) error {
	return r.client.SendEmbed(ctx, channelID, DigestEmbed(digest))
}

// DigestEmbed renders a digest as a Discord embed
func DigestEmbed(digest *domain.Digest) *discord.Embed {
	return &discord.Embed{
		Title:       digest.Title,
		Description: digest.Text,
		Footer:      fmt.Sprintf("Analyzed %d messages", digest.MessageCount),
		Timestamp:   digest.GeneratedAt,
	}
}
