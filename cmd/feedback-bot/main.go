package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/devricklin/feedback-monitor/internal/api"
	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/conf"
	"github.com/devricklin/feedback-monitor/internal/logging"
	"github.com/devricklin/feedback-monitor/internal/server"
	"github.com/devricklin/feedback-monitor/internal/service"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedback-bot",
		Short:         "Capture product feedback from chat and summarize it daily",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(),
		newSummaryCommand(),
		newStatsCommand(),
		newActionableCommand(),
		newDigestsCommand(),
	)
	return root
}

// loadConfig reads configuration and sets up the global logger
func loadConfig() (*conf.Config, zerolog.Logger, error) {
	cfg, err := conf.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.Setup(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	return cfg, logger, nil
}

// ============ run ============

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat platform and run capture, batch and digest loops",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	batch := service.NewBatchProcessor(a.uc.Batch, cfg.Batch.Interval, logger)
	scheduler := service.NewDigestScheduler(a.uc.Digest, cfg.Digest.Hour, loc, logger)
	bot := server.NewBotServer(a.gateway, a.uc.Capture, a.uc.Digest, logger)

	var apiServer *api.Server
	if cfg.API.Addr != "" {
		apiServer = api.NewServer(a.uc.Feedback, a.uc.Digest, a.uc.Batch, cfg.API.Addr, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
	}

	batch.Start(ctx)
	scheduler.Start(ctx)

	logger.Info().
		Str("version", version).
		Str("platform", cfg.Platform).
		Strs("apps", cfg.Monitor.Apps).
		Int("channels", len(cfg.Monitor.Channels)).
		Msg("feedback bot starting")

	runErr := bot.Run(ctx)

	logger.Info().Msg("shutting down")
	scheduler.Stop()
	batch.Stop()
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API server shutdown")
		}
	}
	return runErr
}

// ============ summary ============

func newSummaryCommand() *cobra.Command {
	var (
		since   time.Duration
		deliver bool
		channel string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Generate a feedback digest now and print it",
		Long: `Generate a feedback digest from the monitored channels.

Without --since the window starts at the previous digest run, exactly like the
/summary chat command, and the run is recorded. With --since the digest covers
the given lookback only and leaves the recorded window untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if since > 0 {
				digest, err := a.uc.Digest.Generate(ctx, time.Now().Add(-since))
				fmt.Fprintln(cmd.OutOrStdout(), digest.Text)
				return err
			}

			dest := ""
			if deliver {
				dest = channel
				if dest == "" {
					dest = a.uc.Digest.Destination(ctx)
				}
				if dest == "" {
					return fmt.Errorf("no summary channel configured")
				}
			}

			digest, run, err := a.uc.Digest.Run(ctx, domain.TriggerManual, dest)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n%s\n\nAnalyzed %d messages (%s)\n", digest.Title, digest.Text, digest.MessageCount, run.Status)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Summarize this lookback instead of the window since the last run")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "Also post the digest to the summary channel")
	cmd.Flags().StringVar(&channel, "channel", "", "Channel to deliver to instead of the configured one")
	return cmd
}

// ============ queries ============

func newStatsCommand() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print feedback statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.uc.Feedback.Stats(cmd.Context(), time.Duration(hours)*time.Hour)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Lookback window in hours, 0 for all time")
	return cmd
}

func newActionableCommand() *cobra.Command {
	var (
		hours int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "actionable",
		Short: "List actionable feedback, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.uc.Feedback.Actionable(cmd.Context(), time.Duration(hours)*time.Hour, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(out, "%s  [%s/%s] #%s %s: %s\n",
					rec.MessageTimestamp.Format(time.RFC3339), rec.Sentiment, rec.FeedbackType,
					rec.ChannelName, rec.AuthorName, rec.Summary)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No actionable feedback.")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Lookback window in hours, 0 for all time")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	return cmd
}

func newDigestsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "digests",
		Short: "List recent digest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.repos.DigestRuns.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %-9s %-5s %4d msgs  %s -> %s",
					run.CreatedAt.Format(time.RFC3339), run.Trigger, run.Status, run.MessageCount,
					run.WindowStart.Format(time.RFC3339), run.WindowEnd.Format(time.RFC3339))
				if run.Error != "" {
					fmt.Fprintf(out, "  error: %s", run.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func openStore() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newStoreApp(cfg, logger)
}
