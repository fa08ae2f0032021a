package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
	"github.com/devricklin/feedback-monitor/internal/conf"
	"github.com/devricklin/feedback-monitor/internal/data"
	"github.com/devricklin/feedback-monitor/internal/logging"
	"github.com/devricklin/feedback-monitor/internal/mcp"
)

// feedback-mcp serves the stored feedback over MCP stdio.
// stdout carries the protocol, so logs go to stderr.

var version = "dev"

func main() {
	cfg, err := conf.Load(os.Getenv("FEEDBACK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.Setup(logging.Options{Level: cfg.Log.Level, JSON: true, Output: os.Stderr})

	repos, err := data.NewRepositories(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer repos.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(usecase.NewFeedbackUsecase(repos.Feedback), repos.DigestRuns, version)

	logger.Info().Str("db", cfg.Storage.DBPath).Msg("feedback MCP server starting")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("MCP server error")
	}
}
