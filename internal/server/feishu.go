package server

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/infra/feishu"
)

// feishuGateway adapts the Feishu client to Gateway.
// Commands arrive as text messages starting with a slash.
type feishuGateway struct {
	client    *feishu.Client
	onMessage MessageHandler
	onCommand CommandHandler
	log       zerolog.Logger
}

// NewFeishuGateway creates a gateway over a Feishu websocket connection
func NewFeishuGateway(client *feishu.Client, logger zerolog.Logger) Gateway {
	g := &feishuGateway{
		client: client,
		log:    logger.With().Str("component", "feishu-gateway").Logger(),
	}
	client.OnMessage(g.handleMessage)
	return g
}

func (g *feishuGateway) Name() string { return "feishu" }

func (g *feishuGateway) OnMessage(handler MessageHandler) { g.onMessage = handler }

func (g *feishuGateway) OnCommand(handler CommandHandler) { g.onCommand = handler }

func (g *feishuGateway) ChannelMention(channelID string) string {
	return g.client.ChatName(context.Background(), channelID)
}

func (g *feishuGateway) Run(ctx context.Context) error {
	return g.client.Run(ctx)
}

func (g *feishuGateway) handleMessage(msg *feishu.Message) {
	ctx := context.Background()

	if cmd := ParseTextCommand(msg.Content); cmd != nil && !msg.IsFromApp() {
		if g.onCommand == nil {
			return
		}
		cmd.ChannelID = msg.ChatID
		cmd.UserName = g.client.MemberName(ctx, msg.ChatID, msg.SenderID)
		if reply := g.onCommand(cmd); reply != nil {
			if err := g.client.SendRichText(ctx, msg.ChatID, reply.Title, replyPost(reply)); err != nil {
				g.log.Error().Err(err).Str("command", cmd.Name).Msg("failed to send command reply")
			}
		}
		return
	}

	if g.onMessage == nil {
		return
	}
	in := &domain.IncomingMessage{
		ID:          msg.MsgID,
		ChannelID:   msg.ChatID,
		AuthorID:    msg.SenderID,
		AuthorIsBot: msg.IsFromApp(),
		Content:     msg.Content,
		CreateTime:  msg.CreateTime,
		JumpURL:     feishu.ChatLink(msg.ChatID),
	}
	// group chats play the role of guild channels, p2p chats are direct messages
	if msg.ChatType == "group" {
		in.GuildID = msg.ChatID
		in.ChannelName = g.client.ChatName(ctx, msg.ChatID)
		in.AuthorName = g.client.MemberName(ctx, msg.ChatID, msg.SenderID)
	}
	g.onMessage(in)
}

// ParseTextCommand recognises "/summary" and "/setchannel [chat_id]" in message text
func ParseTextCommand(text string) *domain.Command {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	switch name {
	case CommandSummary:
		return &domain.Command{Name: name}
	case CommandSetChannel:
		cmd := &domain.Command{Name: name}
		if len(fields) > 1 {
			cmd.TargetID = fields[1]
		}
		return cmd
	}
	return nil
}

func replyPost(reply *Reply) [][]map[string]interface{} {
	var content [][]map[string]interface{}
	for _, line := range strings.Split(reply.Text, "\n") {
		content = append(content, []map[string]interface{}{{"tag": "text", "text": line}})
	}
	if reply.Footer != "" {
		content = append(content, []map[string]interface{}{{"tag": "text", "text": reply.Footer}})
	}
	return content
}
