package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/conf"
)

var digestNow = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

type digestFixture struct {
	chat     *mockChatRepo
	llm      *mockLLM
	settings *mockSettingsRepo
	runs     *mockDigestRunRepo
	uc       *DigestUsecase
}

func newDigestFixture(reply func(req domain.CompletionRequest) (string, error)) *digestFixture {
	f := &digestFixture{
		chat:     newMockChatRepo(),
		llm:      &mockLLM{reply: reply},
		settings: newMockSettingsRepo(),
		runs:     &mockDigestRunRepo{},
	}
	f.uc = NewDigestUsecase(f.chat, f.llm, conf.DefaultPromptsConfig(), f.settings, f.runs, DigestConfig{
		Channels:           []string{"c1", "c2"},
		Products:           []string{"cora", "spiral"},
		InternalAuthors:    []string{"Danny", "kieran"},
		HistoryLimit:       500,
		Lookback:           24 * time.Hour,
		MaxTokens:          1500,
		Concurrency:        2,
		DefaultDestination: "dest-default",
	}, zerolog.Nop())
	f.uc.Now = func() time.Time { return digestNow }
	return f
}

func chatMsg(channel, author, content string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          author + content,
		ChannelID:   channel,
		ChannelName: "general",
		AuthorName:  author,
		Content:     content,
		CreateTime:  at,
		JumpURL:     "https://discord.com/channels/g/" + channel + "/1",
	}
}

func TestDigest_OnlyInternalAuthors(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "summary", nil })
	since := digestNow.Add(-time.Hour)
	f.chat.history["c1"] = []domain.ChatMessage{
		chatMsg("c1", "danny#1234", "cora release is out", digestNow.Add(-30*time.Minute)),
		chatMsg("c1", "KIERAN", "spiral fix shipped", digestNow.Add(-20*time.Minute)),
	}

	digest, err := f.uc.Generate(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, conf.DefaultPromptsConfig().EmptyDigest(), digest.Text)
	assert.Equal(t, 0, digest.MessageCount)
	assert.Equal(t, 0, f.llm.calls)
}

func TestDigest_FormatsAndFilters(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "narrative", nil })
	since := digestNow.Add(-time.Hour)
	bot := chatMsg("c1", "helper", "beep", digestNow.Add(-10*time.Minute))
	bot.IsBot = true
	f.chat.history["c1"] = []domain.ChatMessage{
		chatMsg("c1", "bob", "cora export broke", digestNow.Add(-5*time.Minute)),
		bot,
		chatMsg("c1", "old", "stale", since.Add(-time.Minute)),
	}
	f.chat.history["c2"] = []domain.ChatMessage{
		chatMsg("c2", "carol", "spiral needs dark mode", digestNow.Add(-40*time.Minute)),
	}

	digest, err := f.uc.Generate(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "narrative", digest.Text)
	assert.Equal(t, 2, digest.MessageCount)
	require.Len(t, f.llm.requests, 1)
	req := f.llm.requests[0]
	assert.Equal(t, 1500, req.MaxTokens)
	assert.Contains(t, req.Prompt, "[#general] carol (https://discord.com/channels/g/c2/1): spiral needs dark mode\n[#general] bob (https://discord.com/channels/g/c1/1): cora export broke")
	assert.NotContains(t, req.Prompt, "beep")
	assert.NotContains(t, req.Prompt, "stale")
	assert.Contains(t, req.Prompt, "Cora and Spiral")
}

func TestDigest_SkipsFailingChannel(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "ok", nil })
	f.chat.failing["c1"] = true
	f.chat.history["c2"] = []domain.ChatMessage{chatMsg("c2", "carol", "cora", digestNow.Add(-time.Minute))}

	digest, err := f.uc.Generate(context.Background(), digestNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, digest.MessageCount)
}

func TestDigest_ModelFailureReturnsErrorText(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "", errors.New("overloaded") })
	f.chat.history["c1"] = []domain.ChatMessage{chatMsg("c1", "bob", "cora", digestNow.Add(-time.Minute))}

	digest, err := f.uc.Generate(context.Background(), digestNow.Add(-time.Hour))
	require.Error(t, err)
	assert.Equal(t, "Error: overloaded", digest.Text)
}

func TestDigestRun_WindowAndDelivery(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "narrative", nil })
	f.chat.history["c1"] = []domain.ChatMessage{chatMsg("c1", "bob", "cora", digestNow.Add(-time.Minute))}
	ctx := context.Background()

	digest, run, err := f.uc.Run(ctx, domain.TriggerScheduled, "dest")
	require.NoError(t, err)

	assert.Equal(t, digestNow.Add(-24*time.Hour), f.chat.afters["c1"])
	assert.Equal(t, "Daily Feedback Summary", digest.Title)
	assert.Equal(t, domain.DigestStatusOK, run.Status)
	assert.Equal(t, 1, run.MessageCount)
	assert.NotEmpty(t, run.ID)
	require.Len(t, f.chat.sent["dest"], 1)
	require.Len(t, f.runs.runs, 1)
	assert.True(t, f.uc.LastRun(ctx).Equal(digestNow))

	later := digestNow.Add(2 * time.Hour)
	f.uc.Now = func() time.Time { return later }
	_, run, err = f.uc.Run(ctx, domain.TriggerManual, "")
	require.NoError(t, err)

	assert.True(t, f.chat.afters["c1"].Equal(digestNow))
	assert.Equal(t, domain.DigestStatusEmpty, run.Status)
	assert.Len(t, f.chat.sent["dest"], 1)
}

func TestDigestRun_RecordsFailures(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "", errors.New("boom") })
	f.chat.history["c1"] = []domain.ChatMessage{chatMsg("c1", "bob", "cora", digestNow.Add(-time.Minute))}
	f.chat.sendFail = true

	digest, run, err := f.uc.Run(context.Background(), domain.TriggerManual, "dest")
	require.Error(t, err)

	assert.Equal(t, "Error: boom", digest.Text)
	assert.Equal(t, domain.DigestStatusError, run.Status)
	assert.Equal(t, "boom", run.Error)
	assert.True(t, f.uc.LastRun(context.Background()).Equal(digestNow))
}

func TestDigest_Destination(t *testing.T) {
	f := newDigestFixture(func(req domain.CompletionRequest) (string, error) { return "", nil })
	ctx := context.Background()

	assert.Equal(t, "dest-default", f.uc.Destination(ctx))
	require.NoError(t, f.uc.SetDestination(ctx, "c9"))
	require.NoError(t, f.uc.SetDestination(ctx, "c10"))
	assert.Equal(t, "c10", f.uc.Destination(ctx))
	assert.Equal(t, "c10", f.settings.values[repo.SettingDigestDestination])
	err := f.uc.SetDestination(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChatMessage_AuthorHandle(t *testing.T) {
	m := domain.ChatMessage{AuthorName: "danny#0420"}
	assert.Equal(t, "danny", m.AuthorHandle())
	m.AuthorName = "plain"
	assert.Equal(t, "plain", m.AuthorHandle())
}
