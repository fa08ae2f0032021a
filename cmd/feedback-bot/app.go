package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz"
	"github.com/devricklin/feedback-monitor/internal/biz/repo"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
	"github.com/devricklin/feedback-monitor/internal/conf"
	"github.com/devricklin/feedback-monitor/internal/data"
	"github.com/devricklin/feedback-monitor/internal/infra/discord"
	"github.com/devricklin/feedback-monitor/internal/infra/feishu"
	"github.com/devricklin/feedback-monitor/internal/server"
)

// app holds the wired layers shared by the subcommands
type app struct {
	cfg     *conf.Config
	log     zerolog.Logger
	repos   *data.Repositories
	redis   *redis.Client
	gateway server.Gateway
	uc      biz.Usecases
}

// newStoreApp opens only the database, for read-only query commands
func newStoreApp(cfg *conf.Config, logger zerolog.Logger) (*app, error) {
	repos, err := data.NewRepositories(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:   cfg,
		log:   logger,
		repos: repos,
		uc: biz.Usecases{
			Feedback: usecase.NewFeedbackUsecase(repos.Feedback),
		},
	}, nil
}

// newApp wires every layer: storage, queue, model, chat platform and usecases
func newApp(ctx context.Context, cfg *conf.Config, logger zerolog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a, err := newStoreApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	queue, err := a.openQueue(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	llm, err := data.NewLLMRepo(data.LLMOptions{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	chat, err := a.openChat()
	if err != nil {
		a.Close()
		return nil, err
	}

	detector := usecase.NewMentionDetector(cfg.Monitor.Apps, cfg.Monitor.WordBoundary)
	classifier := usecase.NewClassifier(llm, cfg.Prompts, cfg.Monitor.Apps, cfg.LLM.ClassifyMaxTokens)

	a.uc.Capture = usecase.NewCaptureUsecase(detector, queue, usecase.CaptureConfig{
		Channels:         cfg.Monitor.Channels,
		MaxContentLength: cfg.Monitor.MaxContentLength,
	}, logger)
	a.uc.Batch = usecase.NewBatchUsecase(queue, a.repos.Feedback, classifier, usecase.BatchConfig{
		RetryCeiling:    cfg.Batch.RetryCeiling,
		APIErrorRequeue: cfg.Batch.APIErrorRequeue,
		BackoffUnit:     cfg.Batch.BackoffUnit,
	}, logger)
	a.uc.Digest = usecase.NewDigestUsecase(chat, llm, cfg.Prompts, a.repos.Settings, a.repos.DigestRuns, usecase.DigestConfig{
		Channels:           cfg.Monitor.Channels,
		Products:           cfg.Monitor.Apps,
		InternalAuthors:    cfg.Monitor.InternalAuthors,
		HistoryLimit:       cfg.Digest.HistoryLimit,
		Lookback:           cfg.Digest.Lookback,
		MaxTokens:          cfg.LLM.DigestMaxTokens,
		Concurrency:        cfg.Digest.Concurrency,
		DefaultDestination: cfg.Digest.Destination,
	}, logger)

	return a, nil
}

func (a *app) openQueue(ctx context.Context) (repo.QueueRepo, error) {
	switch a.cfg.Batch.QueueBackend {
	case "redis":
		client, err := data.NewRedisClient(ctx, a.cfg.Batch.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		a.log.Info().Str("key", a.cfg.Batch.RedisKey).Msg("using redis queue")
		return data.NewRedisQueue(client, a.cfg.Batch.RedisKey, a.cfg.Batch.QueueCapacity), nil
	default:
		return data.NewMemoryQueue(a.cfg.Batch.QueueCapacity), nil
	}
}

func (a *app) openChat() (repo.ChatRepo, error) {
	switch a.cfg.Platform {
	case "feishu":
		client := feishu.NewClient(a.cfg.Feishu.AppID, a.cfg.Feishu.AppSecret, a.log)
		a.gateway = server.NewFeishuGateway(client, a.log)
		return data.NewFeishuRepo(client), nil
	default:
		client, err := discord.NewClient(a.cfg.Discord.Token, a.log)
		if err != nil {
			return nil, err
		}
		a.gateway = server.NewDiscordGateway(client)
		return data.NewDiscordRepo(client), nil
	}
}

// Close releases the database and queue connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.repos != nil {
		if err := a.repos.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
