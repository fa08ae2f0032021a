package discord

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const (
	// discordEpochMillis is the first millisecond of 2015, the base of Discord snowflakes
	discordEpochMillis = 1420070400000
	// maxPageSize is the largest page the channel messages endpoint returns
	maxPageSize = 100
	// maxDescription is the embed description limit
	maxDescription = 4096
	// embedColor is the blue used for digest embeds
	embedColor = 0x3498db
)

// Message represents a Discord message received from the gateway or read from history
type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	ChannelName string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	Content     string
	Timestamp   time.Time
}

// JumpURL returns the link that opens the message in the Discord client
func (m *Message) JumpURL() string {
	return JumpURL(m.GuildID, m.ChannelID, m.ID)
}

// JumpURL builds a message link
func JumpURL(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// Command is a slash command invocation
type Command struct {
	Name            string
	ChannelID       string
	TargetChannelID string
	UserName        string
}

// Embed is the rich reply posted to a channel
type Embed struct {
	Title       string
	Description string
	Footer      string
	Timestamp   time.Time
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// CommandHandler runs a slash command and returns the reply to post
type CommandHandler func(cmd *Command) *Embed

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "summary",
		Description: "Generate a feedback summary since the last run",
	},
	{
		Name:        "setchannel",
		Description: "Set the channel that receives feedback summaries",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Destination channel, defaults to this one",
				Required:    false,
			},
		},
	},
}

// Client is the Discord bot client
type Client struct {
	session   *discordgo.Session
	onMessage MessageHandler
	onCommand CommandHandler
	log       zerolog.Logger
}

// NewClient creates a new Discord client for a bot token
func NewClient(token string, logger zerolog.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return &Client{
		session: session,
		log:     logger.With().Str("component", "discord").Logger(),
	}, nil
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// OnCommand sets the slash command handler
func (c *Client) OnCommand(handler CommandHandler) {
	c.onCommand = handler
}

// Run opens the gateway connection, registers slash commands and blocks until ctx is done
func (c *Client) Run(ctx context.Context) error {
	c.session.AddHandler(c.handleMessageCreate)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer c.session.Close()

	user := c.session.State.User
	c.log.Info().Str("user", user.Username).Msg("connected")

	for _, cmd := range slashCommands {
		if _, err := c.session.ApplicationCommandCreate(user.ID, "", cmd); err != nil {
			c.log.Warn().Err(err).Str("command", cmd.Name).Msg("failed to register command")
		}
	}

	<-ctx.Done()
	c.log.Info().Msg("disconnecting")
	return nil
}

func (c *Client) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || c.onMessage == nil {
		return
	}
	msg := c.convert(m.Message)
	msg.ChannelName, _ = c.channelInfo(context.Background(), m.ChannelID)
	c.onMessage(msg)
}

func (c *Client) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || c.onCommand == nil {
		return
	}
	data := i.ApplicationCommandData()

	cmd := &Command{
		Name:      data.Name,
		ChannelID: i.ChannelID,
	}
	if i.Member != nil && i.Member.User != nil {
		cmd.UserName = i.Member.User.Username
	} else if i.User != nil {
		cmd.UserName = i.User.Username
	}
	for _, opt := range data.Options {
		if opt.Name == "channel" {
			if ch := opt.ChannelValue(s); ch != nil {
				cmd.TargetChannelID = ch.ID
			}
		}
	}

	// Digest generation can take longer than the 3s interaction deadline
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		c.log.Error().Err(err).Str("command", cmd.Name).Msg("failed to acknowledge command")
		return
	}

	go func() {
		reply := c.onCommand(cmd)
		if reply == nil {
			return
		}
		_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{buildEmbed(reply)},
		})
		if err != nil {
			c.log.Error().Err(err).Str("command", cmd.Name).Msg("failed to send command reply")
		}
	}()
}

// ChannelHistory returns up to limit messages posted after the given time, oldest first
func (c *Client) ChannelHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]*Message, error) {
	// History payloads carry no guild_id, so it comes from the channel
	name, guildID := c.channelInfo(ctx, channelID)
	cursor := SnowflakeAt(after)

	var messages []*Message
	for len(messages) < limit {
		pageSize := limit - len(messages)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		page, err := c.session.ChannelMessages(channelID, pageSize, "", cursor, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch history for %s: %w", channelID, err)
		}
		if len(page) == 0 {
			break
		}

		sort.Slice(page, func(i, j int) bool {
			return snowflakeLess(page[i].ID, page[j].ID)
		})
		for _, m := range page {
			if m.Author == nil {
				continue
			}
			msg := c.convert(m)
			msg.ChannelName = name
			if msg.GuildID == "" {
				msg.GuildID = guildID
			}
			messages = append(messages, msg)
		}

		cursor = page[len(page)-1].ID
		if len(page) < pageSize {
			break
		}
	}

	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// SendEmbed posts an embed to a channel
func (c *Client) SendEmbed(ctx context.Context, channelID string, embed *Embed) error {
	_, err := c.session.ChannelMessageSendEmbed(channelID, buildEmbed(embed), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send embed to %s: %w", channelID, err)
	}
	c.log.Info().Str("channel", channelID).Str("title", embed.Title).Msg("embed sent")
	return nil
}

func (c *Client) convert(m *discordgo.Message) *Message {
	return &Message{
		ID:          m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		AuthorName:  DisplayName(m.Author),
		AuthorIsBot: m.Author.Bot,
		Content:     m.Content,
		Timestamp:   m.Timestamp,
	}
}

// channelInfo resolves a channel's name and guild from the state cache, then the REST API.
// An unresolvable channel yields its ID as the name and an empty guild.
func (c *Client) channelInfo(ctx context.Context, channelID string) (name, guildID string) {
	if ch, err := c.session.State.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name, ch.GuildID
	}
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		c.log.Debug().Err(err).Str("channel", channelID).Msg("failed to resolve channel")
		return channelID, ""
	}
	return ch.Name, ch.GuildID
}

// DisplayName renders a user as "name" or "name#1234" for legacy discriminators
func DisplayName(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// SnowflakeAt returns the smallest snowflake ID at or after t
func SnowflakeAt(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMillis
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatUint(uint64(ms)<<22, 10)
}

func snowflakeLess(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}

func buildEmbed(e *Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: truncate(e.Description, maxDescription),
		Color:       embedColor,
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return embed
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
