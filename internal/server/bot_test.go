package server

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
	"github.com/devricklin/feedback-monitor/internal/conf"
	"github.com/devricklin/feedback-monitor/internal/data"
	"github.com/devricklin/feedback-monitor/internal/infra/discord"
)

type fakeGateway struct {
	onMessage MessageHandler
	onCommand CommandHandler
}

func (g *fakeGateway) Name() string                           { return "fake" }
func (g *fakeGateway) OnMessage(handler MessageHandler)       { g.onMessage = handler }
func (g *fakeGateway) OnCommand(handler CommandHandler)       { g.onCommand = handler }
func (g *fakeGateway) ChannelMention(channelID string) string { return "#" + channelID }
func (g *fakeGateway) Run(ctx context.Context) error          { <-ctx.Done(); return nil }

type fakeChat struct {
	history []domain.ChatMessage
}

func (c *fakeChat) FetchHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	return c.history, nil
}

func (c *fakeChat) SendDigest(ctx context.Context, channelID string, digest *domain.Digest) error {
	return nil
}

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return "**URGENT**\nNothing urgent today", nil
}

type fixture struct {
	gateway  *fakeGateway
	queue    repo.QueueRepo
	settings repo.SettingsRepo
	server   *BotServer
}

func newFixture(t *testing.T, history []domain.ChatMessage) *fixture {
	t.Helper()
	repos, err := data.NewRepositories(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	queue := data.NewMemoryQueue(10)
	capture := usecase.NewCaptureUsecase(usecase.NewMentionDetector([]string{"cora", "spiral"}, false), queue,
		usecase.CaptureConfig{Channels: []string{"c1"}, MaxContentLength: 1000}, zerolog.Nop())
	digest := usecase.NewDigestUsecase(&fakeChat{history: history}, fakeLLM{}, conf.DefaultPromptsConfig(),
		repos.Settings, repos.DigestRuns, usecase.DigestConfig{
			Channels:  []string{"c1"},
			Products:  []string{"cora", "spiral"},
			Lookback:  24 * time.Hour,
			MaxTokens: 1500,
		}, zerolog.Nop())

	gw := &fakeGateway{}
	return &fixture{
		gateway:  gw,
		queue:    queue,
		settings: repos.Settings,
		server:   NewBotServer(gw, capture, digest, zerolog.Nop()),
	}
}

func TestBotServer_RegistersHandlers(t *testing.T) {
	f := newFixture(t, nil)
	assert.NotNil(t, f.gateway.onMessage)
	assert.NotNil(t, f.gateway.onCommand)
}

func TestBotServer_HandleMessageDeduplicates(t *testing.T) {
	f := newFixture(t, nil)
	msg := &domain.IncomingMessage{ID: "m1", GuildID: "g", ChannelID: "c1", AuthorName: "user", Content: "Cora keeps crashing"}

	f.gateway.onMessage(msg)
	f.gateway.onMessage(msg)

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBotServer_ConcurrentRedeliveryCapturedOnce(t *testing.T) {
	f := newFixture(t, nil)
	msg := &domain.IncomingMessage{ID: "m1", GuildID: "g", ChannelID: "c1", AuthorName: "user", Content: "Spiral lost my notes"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.gateway.onMessage(msg)
		}()
	}
	wg.Wait()

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkIfUnseen(t *testing.T) {
	f := newFixture(t, nil)
	assert.True(t, f.server.markIfUnseen("a"))
	assert.False(t, f.server.markIfUnseen("a"))
	assert.True(t, f.server.markIfUnseen("b"))

	f.server.seenMsgs["a"] = time.Now().Add(-2 * seenTTL)
	assert.True(t, f.server.markIfUnseen("a"))
}

func TestBotServer_HandleMessageIgnoresUnrelated(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.onMessage(&domain.IncomingMessage{ID: "m1", GuildID: "g", ChannelID: "c1", Content: "hello there"})
	f.gateway.onMessage(&domain.IncomingMessage{ID: "m2", GuildID: "g", ChannelID: "c2", Content: "cora"})

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBotServer_SummaryCommand(t *testing.T) {
	f := newFixture(t, []domain.ChatMessage{
		{ID: "1", ChannelID: "c1", ChannelName: "general", AuthorName: "user", Content: "spiral export broke", CreateTime: time.Now().Add(-time.Hour)},
	})

	reply := f.gateway.onCommand(&domain.Command{Name: CommandSummary, ChannelID: "c1", UserName: "op"})
	require.NotNil(t, reply)
	assert.Equal(t, "Feedback Summary", reply.Title)
	assert.Equal(t, "**URGENT**\nNothing urgent today", reply.Text)
	assert.Equal(t, "Analyzed 1 messages", reply.Footer)

	_, err := f.settings.Get(context.Background(), repo.SettingLastDigestRun)
	assert.NoError(t, err)
}

func TestBotServer_SetChannelCommand(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reply := f.gateway.onCommand(&domain.Command{Name: CommandSetChannel, ChannelID: "c1", TargetID: "c9"})
	assert.Equal(t, "Summary channel set to #c9", reply.Text)
	v, err := f.settings.Get(ctx, repo.SettingDigestDestination)
	require.NoError(t, err)
	assert.Equal(t, "c9", v)

	reply = f.gateway.onCommand(&domain.Command{Name: CommandSetChannel, ChannelID: "c1"})
	assert.Equal(t, "Summary channel set to #c1", reply.Text)
	v, err = f.settings.Get(ctx, repo.SettingDigestDestination)
	require.NoError(t, err)
	assert.Equal(t, "c1", v)
}

func TestBotServer_UnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.gateway.onCommand(&domain.Command{Name: "dance"})
	assert.Equal(t, "Unknown command: dance", reply.Text)
}

func TestParseTextCommand(t *testing.T) {
	assert.Nil(t, ParseTextCommand("cora is great"))
	assert.Nil(t, ParseTextCommand("/unknown"))
	assert.Nil(t, ParseTextCommand(""))

	cmd := ParseTextCommand("  /Summary ")
	require.NotNil(t, cmd)
	assert.Equal(t, CommandSummary, cmd.Name)

	cmd = ParseTextCommand("/setchannel oc_123")
	require.NotNil(t, cmd)
	assert.Equal(t, CommandSetChannel, cmd.Name)
	assert.Equal(t, "oc_123", cmd.TargetID)
}

func TestReplyPost(t *testing.T) {
	post := replyPost(&Reply{Text: "a\nb", Footer: "Analyzed 2 messages"})
	require.Len(t, post, 3)
	assert.Equal(t, "Analyzed 2 messages", post[2][0]["text"])
}

func TestConvertDiscordMessage(t *testing.T) {
	at := time.Now()
	in := convertDiscordMessage(&discord.Message{
		ID: "3", GuildID: "1", ChannelID: "2", ChannelName: "feedback",
		AuthorID: "u", AuthorName: "alice", Content: "cora", Timestamp: at,
	})
	assert.Equal(t, "https://discord.com/channels/1/2/3", in.JumpURL)
	assert.Equal(t, "feedback", in.ChannelName)
	assert.Equal(t, at, in.CreateTime)
	assert.False(t, in.IsDirect())
}
