package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/4rctail/restarter/internal/alerts"
	"github.com/4rctail/restarter/internal/clock"
	"github.com/4rctail/restarter/internal/config"
	"github.com/4rctail/restarter/internal/events"
	"github.com/4rctail/restarter/internal/lifecycle"
	"github.com/4rctail/restarter/internal/relay"
	"github.com/4rctail/restarter/internal/restart"
	"github.com/4rctail/restarter/internal/server"
	"github.com/4rctail/restarter/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "./restarter.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	var svcErr *config.ServiceListError
	if errors.As(err, &svcErr) {
		// Recoverable: keep serving health/webhook with zero services.
		logger.Error("malformed service list, continuing with none", "error", svcErr)
	} else if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}
	logger.Info("config loaded", "services", len(cfg.Services), "listen", cfg.Listen, "watchdog", cfg.Watchdog.Enabled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter := events.NewEmitter(logger)

	var notifier alerts.Notifier = alerts.Noop{}
	if cfg.Alerts.WebhookURL != "" {
		notifier = alerts.NewWebhookAlerter(cfg.Alerts.WebhookURL, logger)
	} else {
		logger.Warn("no alert webhook configured, failures only visible in logs")
	}
	alerts.RegisterEventHandler(notifier, emitter)

	if cfg.Relay.URL != "" {
		rcfg := relay.DefaultConfig()
		rcfg.URL = cfg.Relay.URL
		rcfg.Token = cfg.Relay.Token
		rl, err := relay.Connect(rcfg, "restarterd", logger)
		if err != nil {
			logger.Warn("event relay unavailable (continuing without)", "error", err)
		} else {
			defer rl.Close()
			rl.RegisterEventHandler(emitter)
			logger.Info("event relay connected", "url", cfg.Relay.URL)
		}
	}

	clk := clock.New()
	client := lifecycle.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout, logger)
	poller := lifecycle.NewPoller(client, cfg.Restart.PollInterval, clk, logger)
	runner := restart.NewRunner(client, poller, restart.PolicyFromConfig(cfg.Restart), clk, emitter, logger)

	if len(cfg.Services) == 0 {
		emitter.Emit(events.Event{Type: events.ConfigNoServices})
	}

	if cfg.Watchdog.Enabled {
		wd := watchdog.New(cfg.Watchdog, cfg.Services, runner, emitter, clk, logger)
		go wd.Start(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      server.New(cfg, runner, notifier, emitter, ctx, logger).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	// Cancelling ctx interrupts in-flight polls and backoff sleeps so
	// shutdown never waits for a restart timeout to elapse.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
