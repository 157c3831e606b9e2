package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/avernost/depwatch/internal/alert"
	"github.com/avernost/depwatch/internal/config"
	"github.com/avernost/depwatch/internal/metrics"
	"github.com/avernost/depwatch/internal/notify"
	"github.com/avernost/depwatch/internal/scheduler"
	"github.com/avernost/depwatch/internal/server"
	"github.com/avernost/depwatch/internal/state"
	"github.com/avernost/depwatch/internal/storage"
	"github.com/avernost/depwatch/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "depwatch",
		Short:        "Dependency health monitor and alerting engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("depwatch %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring engine and API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := config.NewLogger(cfg.Log)
	logger.Info("config loaded", "services", len(cfg.Services))

	// 2. Open the probe-history log (optional)
	var db *storage.DB
	if cfg.Storage.Path != "" {
		db, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening probe log: %w", err)
		}
		defer db.Close()
	}

	// 3. Metrics registry
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// 4. Notification channels: missing credentials disable a channel.
	var channels []notify.Channel
	if cfg.Notify.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.Notify.SlackWebhookURL))
	}
	if cfg.Notify.PagerDutyRoutingKey != "" {
		channels = append(channels, notify.NewPagerDutyChannel(cfg.Notify.PagerDutyRoutingKey))
	}
	fanout := notify.NewFanout(channels, logger)
	logger.Info("notification channels configured", "channels", fanout.ChannelNames())

	// 5. Build the engine
	ledger := alert.NewLedger(cfg.Alerts.Cooloff.Duration, cfg.Alerts.Retention.Duration)
	var history scheduler.HistoryStore
	if db != nil {
		history = db
	}
	engine, err := scheduler.New(
		cfg.Services,
		cfg.Timeout.Duration,
		cfg.Interval.Duration,
		state.NewStore(),
		ledger,
		alert.ThresholdsFromConfig(cfg.Thresholds),
		fanout,
		history,
		logger,
	)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	// 6. Build API server
	var serverHistory server.HistoryStore
	if db != nil {
		serverHistory = db
	}
	apiServer := server.New(engine, serverHistory, registry, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: apiServer.Router(),
	}

	// 7. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 8. Start the engine
	engine.Start(ctx)
	logger.Info("engine started", "interval", cfg.Interval.Duration, "services", len(cfg.Services))

	// 9. Start HTTP server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// 10. Wait for signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// 11. Graceful shutdown
	engine.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a one-off check of all configured services",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return executeCheck(cmd, cfg)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest probe outcome per service from the probe log",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("probe history is disabled (empty storage path)")
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening probe log: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd, db)
}
