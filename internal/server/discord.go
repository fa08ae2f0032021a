package server

import (
	"context"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/infra/discord"
)

// discordGateway adapts the Discord client to Gateway
type discordGateway struct {
	client *discord.Client
}

// NewDiscordGateway creates a gateway over a Discord bot connection
func NewDiscordGateway(client *discord.Client) Gateway {
	return &discordGateway{client: client}
}

func (g *discordGateway) Name() string { return "discord" }

func (g *discordGateway) OnMessage(handler MessageHandler) {
	g.client.OnMessage(func(msg *discord.Message) {
		handler(convertDiscordMessage(msg))
	})
}

func (g *discordGateway) OnCommand(handler CommandHandler) {
	g.client.OnCommand(func(cmd *discord.Command) *discord.Embed {
		reply := handler(&domain.Command{
			Name:      cmd.Name,
			ChannelID: cmd.ChannelID,
			TargetID:  cmd.TargetChannelID,
			UserName:  cmd.UserName,
		})
		if reply == nil {
			return nil
		}
		return &discord.Embed{
			Title:       reply.Title,
			Description: reply.Text,
			Footer:      reply.Footer,
			Timestamp:   reply.Timestamp,
		}
	})
}

func (g *discordGateway) ChannelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func (g *discordGateway) Run(ctx context.Context) error {
	return g.client.Run(ctx)
}

func convertDiscordMessage(msg *discord.Message) *domain.IncomingMessage {
	return &domain.IncomingMessage{
		ID:          msg.ID,
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		AuthorID:    msg.AuthorID,
		AuthorName:  msg.AuthorName,
		AuthorIsBot: msg.AuthorIsBot,
		Content:     msg.Content,
		CreateTime:  msg.Timestamp,
		JumpURL:     msg.JumpURL(),
	}
}
