package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"
)

// maxPageSize is the largest page the message list API returns
const maxPageSize = 50

// Message represents a received or listed Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	MsgType    string // text, post
	ChatType   string // p2p (private), group
	Content    string // text content with mention placeholders resolved
	SenderID   string
	SenderType string // user, app
	CreateTime time.Time
}

// IsFromApp reports whether a bot or app sent the message
func (m *Message) IsFromApp() bool {
	return m.SenderType == "app"
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	onMessage MessageHandler
	log       zerolog.Logger

	namesMu   sync.Mutex
	chatNames map[string]string
	userNames map[string]map[string]string // chat -> open_id -> name
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger zerolog.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		log:       logger.With().Str("component", "feishu").Logger(),
		chatNames: make(map[string]string),
		userNames: make(map[string]map[string]string),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Run connects via WebSocket and blocks until ctx is done
func (c *Client) Run(ctx context.Context) error {
	// Must return quickly so the SDK can ACK, otherwise Feishu retries the event
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	wsCli := larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info().Msg("starting websocket connection")

	errCh := make(chan error, 1)
	go func() { errCh <- wsCli.Start(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// handleMessage converts a receive event and hands it to the handler
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	rawMsg := event.Event.Message
	if rawMsg == nil || rawMsg.ChatId == nil || rawMsg.MessageId == nil || rawMsg.MessageType == nil {
		return
	}

	msg := &Message{
		ChatID:  *rawMsg.ChatId,
		MsgID:   *rawMsg.MessageId,
		MsgType: *rawMsg.MessageType,
	}
	if rawMsg.ChatType != nil {
		msg.ChatType = *rawMsg.ChatType
	}
	if rawMsg.CreateTime != nil {
		msg.CreateTime = parseMillis(*rawMsg.CreateTime)
	}

	if sender := event.Event.Sender; sender != nil {
		if sender.SenderId != nil && sender.SenderId.OpenId != nil {
			msg.SenderID = *sender.SenderId.OpenId
		}
		if sender.SenderType != nil {
			msg.SenderType = *sender.SenderType
		}
	}

	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	content := ""
	if rawMsg.Content != nil {
		content = *rawMsg.Content
	}
	var ok bool
	if msg.Content, ok = parseContent(msg.MsgType, content, mentionMap); !ok {
		c.log.Debug().Str("type", msg.MsgType).Msg("unsupported message type")
		return
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// parseContent extracts text from text and post messages
func parseContent(msgType, content string, mentionMap map[string]string) (string, bool) {
	switch msgType {
	case "text":
		return parseTextContent(content, mentionMap), true
	case "post":
		return parsePostContent(content, mentionMap), true
	}
	return "", false
}

// parseTextContent extracts text from a text message
// It also replaces mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent flattens a rich text message into lines of text
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			Href   string `json:"href,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var parts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text", "a":
				if elem.Text != "" {
					parts = append(parts, elem.Text)
				}
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					parts = append(parts, "@"+name)
				} else if elem.UserID != "" {
					parts = append(parts, "@"+elem.UserID)
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ""))
		}
	}

	return replaceMentions(strings.Join(lines, "\n"), mentionMap)
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, etc.) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// SendRichText sends a rich text (post) message to a chat
func (c *Client) SendRichText(ctx context.Context, chatID, title string, content [][]map[string]interface{}) error {
	post := map[string]interface{}{
		"zh_cn": map[string]interface{}{
			"title":   title,
			"content": content,
		},
	}
	contentJSON, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encode rich text: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypePost).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send rich text failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send rich text error: %s", resp.Msg)
	}

	c.log.Info().Str("chat", chatID).Msg("rich text sent")
	return nil
}

// ListMessagesSince pages through a chat's history after the given time, oldest first, up to limit messages
func (c *Client) ListMessagesSince(ctx context.Context, chatID string, after time.Time, limit int) ([]*Message, error) {
	var messages []*Message
	var pageToken string

	for len(messages) < limit {
		pageSize := limit - len(messages)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		builder := larkim.NewListMessageReqBuilder().
			ContainerIdType("chat").
			ContainerId(chatID).
			StartTime(strconv.FormatInt(after.Unix(), 10)).
			SortType("ByCreateTimeAsc").
			PageSize(pageSize)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Message.List(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat history failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat history error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			if msg := convertHistoryItem(chatID, item); msg != nil {
				messages = append(messages, msg)
			}
		}

		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// convertHistoryItem converts one listed message, skipping unsupported types
func convertHistoryItem(chatID string, item *larkim.Message) *Message {
	if item == nil || item.MessageId == nil || item.MsgType == nil {
		return nil
	}

	mentionMap := make(map[string]string)
	for _, mention := range item.Mentions {
		if mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	msg := &Message{
		ChatID:  chatID,
		MsgID:   *item.MessageId,
		MsgType: *item.MsgType,
	}
	if item.Body == nil || item.Body.Content == nil {
		return nil
	}
	var ok bool
	if msg.Content, ok = parseContent(msg.MsgType, *item.Body.Content, mentionMap); !ok {
		return nil
	}
	if item.CreateTime != nil {
		msg.CreateTime = parseMillis(*item.CreateTime)
	}
	if item.Sender != nil {
		if item.Sender.Id != nil {
			msg.SenderID = *item.Sender.Id
		}
		if item.Sender.SenderType != nil {
			msg.SenderType = *item.Sender.SenderType
		}
	}
	return msg
}

// ChatName returns a chat's display name, cached after the first lookup
func (c *Client) ChatName(ctx context.Context, chatID string) string {
	c.namesMu.Lock()
	name, ok := c.chatNames[chatID]
	c.namesMu.Unlock()
	if ok {
		return name
	}

	req := larkim.NewGetChatReqBuilder().ChatId(chatID).Build()
	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil || !resp.Success() || resp.Data.Name == nil {
		c.log.Warn().Err(err).Str("chat", chatID).Msg("failed to get chat info")
		return chatID
	}

	c.namesMu.Lock()
	c.chatNames[chatID] = *resp.Data.Name
	c.namesMu.Unlock()
	return *resp.Data.Name
}

// MemberName resolves an open_id to a display name via the chat's member list
func (c *Client) MemberName(ctx context.Context, chatID, openID string) string {
	c.namesMu.Lock()
	members, ok := c.userNames[chatID]
	c.namesMu.Unlock()

	if !ok {
		loaded, err := c.chatMembers(ctx, chatID)
		if err != nil {
			c.log.Warn().Err(err).Str("chat", chatID).Msg("failed to get chat members")
			return openID
		}
		members = loaded
		c.namesMu.Lock()
		c.userNames[chatID] = members
		c.namesMu.Unlock()
	}

	if name, ok := members[openID]; ok {
		return name
	}
	return openID
}

// chatMembers retrieves every member of a chat, following pagination
func (c *Client) chatMembers(ctx context.Context, chatID string) (map[string]string, error) {
	members := make(map[string]string)
	var pageToken string

	for {
		builder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			if item.MemberId != nil && item.Name != nil {
				members[*item.MemberId] = *item.Name
			}
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}
	return members, nil
}

// ChatLink returns an applink that opens the chat in the Feishu client
func ChatLink(chatID string) string {
	return "https://applink.feishu.cn/client/chat/open?openChatId=" + chatID
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
