package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lzrong0203/memo-run/internal/config"
	"github.com/lzrong0203/memo-run/internal/db"
	"github.com/lzrong0203/memo-run/internal/monitor"
	"github.com/lzrong0203/memo-run/internal/notify"
	"github.com/lzrong0203/memo-run/internal/report"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/server"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitoring API server",
	Long:  `Start an HTTP server that launches monitoring runs, streams their progress and serves run history and reports.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config YAML (default $MEMO_RUN_CONFIG)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, closeLog := config.SetupLogger(cfg.Logging.File, cfg.LogLevel())
	defer closeLog() //nolint:errcheck
	slog.SetDefault(logger)

	ctx := cmd.Context()

	store, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open run registry: %w", err)
	}
	defer store.Close()

	scoringCfg := scoring.LoadConfig(cfg.Paths.ScoringConfig)

	orch := monitor.New(monitor.Options{
		Agent:    newAgent(cfg.Agent, logger),
		Registry: store,
		Composer: &report.Composer{
			ReportsDir: cfg.Paths.ReportsDir,
			Scoring:    scoringCfg,
			Publisher:  newPublisher(cfg.Notifications.Gist),
			Logger:     logger,
		},
		Notifier:          newNotifier(cfg.Notifications),
		MaxConcurrentRuns: cfg.Monitor.MaxConcurrentRuns,
		GracePeriod:       cfg.Monitor.GracePeriod,
		KeepaliveInterval: cfg.Monitor.KeepaliveInterval,
		MaxCapturedLines:  cfg.Agent.MaxCapturedLines,
		Logger:            logger,
	})

	srv := server.New(server.Options{
		Config:       cfg.Server,
		RateLimit:    cfg.RateLimit,
		Store:        store,
		Orchestrator: orch,
		Scoring:      scoringCfg,
		Logger:       logger,
	})

	logger.Info("monitor configured",
		"agent", cfg.Agent.Command,
		"database", cfg.Database.Driver,
		"max_concurrent_runs", cfg.Monitor.MaxConcurrentRuns,
		"telegram", cfg.Notifications.Telegram.Enabled(),
		"gist", cfg.Notifications.Gist.Enabled())

	return srv.Start(ctx)
}

func newAgent(cfg config.AgentConfig, logger *slog.Logger) *monitor.CommandAgent {
	return &monitor.CommandAgent{
		Command: cfg.Command,
		Args:    cfg.Args,
		WorkDir: cfg.WorkDir,
		Timeout: cfg.Timeout,
		OnStderr: func(line string) {
			logger.Debug("agent stderr", "line", line)
		},
	}
}

// newNotifier returns nil when Telegram is not configured.
func newNotifier(cfg config.NotificationConfig) notify.Notifier {
	if !cfg.Telegram.Enabled() {
		return nil
	}
	return notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

// newPublisher returns nil when no GitHub token is configured.
func newPublisher(cfg config.GistConfig) report.Publisher {
	if !cfg.Enabled() {
		return nil
	}
	gist := notify.NewGist(cfg.Token)
	if cfg.APIURL != "" {
		gist.WithBaseURL(cfg.APIURL)
	}
	return gist
}
