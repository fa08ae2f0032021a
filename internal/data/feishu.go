package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/infra/feishu"
)

// feishuClient is the part of the Feishu client the repository needs
type feishuClient interface {
	ListMessagesSince(ctx context.Context, chatID string, after time.Time, limit int) ([]*feishu.Message, error)
	ChatName(ctx context.Context, chatID string) string
	MemberName(ctx context.Context, chatID, openID string) string
	SendRichText(ctx context.Context, chatID, title string, content [][]map[string]interface{}) error
}

// feishuRepo implements the chat repository on Feishu group chats
type feishuRepo struct {
	client feishuClient
}

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client feishuClient) repo.ChatRepo {
	return &feishuRepo{client: client}
}

// FetchHistory reads a group chat's messages after the given time
func (r *feishuRepo) FetchHistory(ctx context.Context, chatID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	msgs, err := r.client.ListMessagesSince(ctx, chatID, after, limit)
	if err != nil {
		return nil, err
	}

	chatName := r.client.ChatName(ctx, chatID)
	result := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		senderName := m.SenderID
		if !m.IsFromApp() && m.SenderID != "" {
			senderName = r.client.MemberName(ctx, chatID, m.SenderID)
		}
		result = append(result, domain.ChatMessage{
			ID:          m.MsgID,
			ChannelID:   chatID,
			ChannelName: chatName,
			AuthorName:  senderName,
			IsBot:       m.IsFromApp(),
			Content:     m.Content,
			CreateTime:  m.CreateTime,
			JumpURL:     feishu.ChatLink(chatID),
		})
	}
	return result, nil
}

// SendDigest posts the digest as a rich text message, one paragraph per line
func (r *feishuRepo) SendDigest(ctx context.Context, chatID string, digest *domain.Digest) error {
	return r.client.SendRichText(ctx, chatID, digest.Title, digestPost(digest))
}

// digestPost converts digest text into Feishu post paragraphs followed by the analyzed-count footer
func digestPost(digest *domain.Digest) [][]map[string]interface{} {
	var content [][]map[string]interface{}
	for _, line := range strings.Split(digest.Text, "\n") {
		content = append(content, []map[string]interface{}{
			{"tag": "text", "text": line},
		})
	}
	content = append(content, []map[string]interface{}{
		{"tag": "text", "text": fmt.Sprintf("Analyzed %d messages", digest.MessageCount)},
	})
	return content
}
