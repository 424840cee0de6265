// Command polly is the main entry point for the Polly conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pollyconnect/polly/internal/app"
	"github.com/pollyconnect/polly/internal/config"
	"github.com/pollyconnect/polly/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("polly", version)
		return 0
	}

	var cfg *config.Config
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
		// Running without a config file is fine for development: the
		// embedded content and defaults carry the whole conversation.
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "polly: %v\n", err)
			return 1
		}
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("polly starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "polly",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

func printStartupSummary(cfg *config.Config) {
	onOff := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}
	storage := "in-memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	}
	notifications := "(no webhook)"
	if cfg.Notifications.Enabled && cfg.Notifications.WebhookURL != "" {
		notifications = "webhook"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Polly — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen addr     : %-19s║\n", cfg.Server.ListenAddr)
	fmt.Printf("║  Story storage   : %-19s║\n", storage)
	fmt.Printf("║  Story recording : %-19s║\n", onOff(cfg.Recording.Enabled))
	fmt.Printf("║  Memory care     : %-19s║\n", onOff(cfg.MemoryCare.Enabled))
	fmt.Printf("║  Notifications   : %-19s║\n", notifications)
	fmt.Printf("║  Session timeout : %-19s║\n", cfg.Limits.SessionTimeout())
	fmt.Println("╚═══════════════════════════════════════╝")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
