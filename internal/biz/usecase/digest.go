package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/metrics"
)

// DigestConfig contains digest generation configuration
type DigestConfig struct {
	Channels           []string
	Products           []string
	InternalAuthors    []string
	HistoryLimit       int // per channel
	Lookback           time.Duration
	MaxTokens          int
	Concurrency        int
	DefaultDestination string
}

// DigestUsecase collects recent channel history and asks the model for a narrative summary
type DigestUsecase struct {
	chat     repo.ChatRepo
	llm      repo.LLMRepo
	prompts  Prompts
	settings repo.SettingsRepo
	runs     repo.DigestRunRepo
	config   DigestConfig
	internal map[string]bool
	log      zerolog.Logger

	// Now is replaceable in tests
	Now func() time.Time

	runMu sync.Mutex
}

// NewDigestUsecase creates a new digest usecase
func NewDigestUsecase(
	chat repo.ChatRepo,
	llm repo.LLMRepo,
	prompts Prompts,
	settings repo.SettingsRepo,
	runs repo.DigestRunRepo,
	config DigestConfig,
	logger zerolog.Logger,
) *DigestUsecase {
	internal := make(map[string]bool, len(config.InternalAuthors))
	for _, a := range config.InternalAuthors {
		internal[strings.ToLower(strings.TrimSpace(a))] = true
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &DigestUsecase{
		chat:     chat,
		llm:      llm,
		prompts:  prompts,
		settings: settings,
		runs:     runs,
		config:   config,
		internal: internal,
		log:      logger.With().Str("component", "digest").Logger(),
		Now:      time.Now,
	}
}

// Generate builds a digest of user messages posted after since.
// A failed model call yields a digest whose text starts with "Error: " together with the error.
func (uc *DigestUsecase) Generate(ctx context.Context, since time.Time) (*domain.Digest, error) {
	msgs := uc.collect(ctx, since)

	digest := &domain.Digest{
		Title:        domain.TriggerManual.Title(),
		MessageCount: len(msgs),
		GeneratedAt:  uc.Now(),
	}

	if len(msgs) == 0 {
		digest.Text = uc.prompts.EmptyDigest()
		return digest, nil
	}

	prompt := uc.prompts.DigestPrompt(uc.config.Products, FormatMessages(msgs))
	text, err := uc.llm.Complete(ctx, domain.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: uc.config.MaxTokens,
	})
	if err != nil {
		uc.log.Error().Err(err).Msg("digest generation failed")
		digest.Text = "Error: " + err.Error()
		return digest, err
	}

	digest.Text = text
	return digest, nil
}

// collect fetches every monitored channel concurrently and returns user messages in time order.
// A channel that fails is skipped.
func (uc *DigestUsecase) collect(ctx context.Context, since time.Time) []domain.ChatMessage {
	perChannel := make([][]domain.ChatMessage, len(uc.config.Channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.config.Concurrency)
	for i, channelID := range uc.config.Channels {
		i, channelID := i, channelID
		g.Go(func() error {
			msgs, err := uc.chat.FetchHistory(gctx, channelID, since, uc.config.HistoryLimit)
			if err != nil {
				uc.log.Error().Err(err).Str("channel", channelID).Msg("failed to fetch channel history")
				return nil
			}
			perChannel[i] = msgs
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.ChatMessage
	for _, msgs := range perChannel {
		for _, m := range msgs {
			if m.IsBot || !m.IsAfter(since) || uc.IsInternal(m.AuthorHandle()) {
				continue
			}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreateTime.Before(out[j].CreateTime)
	})

	uc.log.Info().Int("messages", len(out)).Time("since", since).Msg("fetched history")
	return out
}

// IsInternal reports whether handle belongs to the internal team
func (uc *DigestUsecase) IsInternal(handle string) bool {
	return uc.internal[strings.ToLower(strings.TrimSpace(handle))]
}

// FormatMessages renders one "[#channel] author (link): content" line per message
func FormatMessages(msgs []domain.ChatMessage) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf("[#%s] %s (%s): %s", m.ChannelName, m.AuthorName, m.JumpURL, m.Content)
	}
	return strings.Join(lines, "\n")
}

// Run generates a digest for the window since the previous run and optionally delivers it.
// The window start advances even when the model call fails.
func (uc *DigestUsecase) Run(ctx context.Context, trigger domain.Trigger, deliverTo string) (*domain.Digest, *domain.DigestRun, error) {
	uc.runMu.Lock()
	defer uc.runMu.Unlock()

	start := uc.Now()
	since := uc.LastRun(ctx)
	if since.IsZero() {
		since = start.Add(-uc.config.Lookback)
	}

	run := &domain.DigestRun{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		WindowStart: since,
		WindowEnd:   start,
		Destination: deliverTo,
		CreatedAt:   start,
	}

	digest, genErr := uc.Generate(ctx, since)
	digest.Title = trigger.Title()
	run.MessageCount = digest.MessageCount

	if err := uc.settings.Set(ctx, repo.SettingLastDigestRun, start.UTC().Format(time.RFC3339Nano)); err != nil {
		uc.log.Error().Err(err).Msg("failed to persist last run")
	}

	switch {
	case genErr != nil:
		run.Status = domain.DigestStatusError
		run.Error = genErr.Error()
	case digest.MessageCount == 0:
		run.Status = domain.DigestStatusEmpty
	default:
		run.Status = domain.DigestStatusOK
	}

	var deliverErr error
	if deliverTo != "" {
		if deliverErr = uc.chat.SendDigest(ctx, deliverTo, digest); deliverErr != nil {
			uc.log.Error().Err(deliverErr).Str("channel", deliverTo).Msg("failed to deliver digest")
			if run.Error == "" {
				run.Error = deliverErr.Error()
			}
			run.Status = domain.DigestStatusError
		}
	}

	if err := uc.runs.Record(ctx, run); err != nil {
		uc.log.Error().Err(err).Msg("failed to record digest run")
	}
	metrics.DigestRuns.WithLabelValues(string(trigger), run.Status).Inc()

	uc.log.Info().
		Str("run_id", run.ID).
		Str("trigger", string(trigger)).
		Str("status", run.Status).
		Int("messages", run.MessageCount).
		Msg("digest run finished")

	if deliverErr != nil {
		return digest, run, fmt.Errorf("failed to deliver digest: %w", deliverErr)
	}
	return digest, run, nil
}

// LastRun returns the persisted start of the previous run, or zero time
func (uc *DigestUsecase) LastRun(ctx context.Context) time.Time {
	v, err := uc.settings.Get(ctx, repo.SettingLastDigestRun)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Msg("failed to read last run")
		}
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		uc.log.Warn().Str("value", v).Msg("ignoring malformed last run")
		return time.Time{}
	}
	return t
}

// Destination returns the channel digests are delivered to
func (uc *DigestUsecase) Destination(ctx context.Context) string {
	v, err := uc.settings.Get(ctx, repo.SettingDigestDestination)
	if err == nil && v != "" {
		return v
	}
	return uc.config.DefaultDestination
}

// SetDestination changes the delivery channel; the last write wins
func (uc *DigestUsecase) SetDestination(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("%w: destination channel is required", domain.ErrInvalidArgument)
	}
	if err := uc.settings.Set(ctx, repo.SettingDigestDestination, channelID); err != nil {
		return fmt.Errorf("failed to save destination: %w", err)
	}
	uc.log.Info().Str("channel", channelID).Msg("digest destination updated")
	return nil
}

// History lists recent digest runs
func (uc *DigestUsecase) History(ctx context.Context, limit int) ([]*domain.DigestRun, error) {
	return uc.runs.List(ctx, limit)
}
