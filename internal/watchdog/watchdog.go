package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/4rctail/restarter/internal/clock"
	"github.com/4rctail/restarter/internal/config"
	"github.com/4rctail/restarter/internal/events"
	"github.com/4rctail/restarter/internal/restart"
)

// Restarter is the slice of the restart runner the watchdog needs.
type Restarter interface {
	Restart(ctx context.Context, svc config.Service) restart.Outcome
}

// Watchdog periodically health-probes each managed service and
// restarts it after two consecutive probe failures separated by a
// cooldown. A first-probe success short-circuits with no action.
type Watchdog struct {
	services []config.Service
	interval time.Duration
	cooldown time.Duration
	client   *http.Client
	runner   Restarter
	emitter  *events.Emitter
	clock    clock.Clock
	logger   *slog.Logger
}

func New(cfg config.Watchdog, services []config.Service, runner Restarter, emitter *events.Emitter, clk clock.Clock, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		services: services,
		interval: cfg.Interval,
		cooldown: cfg.Cooldown,
		client:   &http.Client{Timeout: cfg.ProbeTimeout},
		runner:   runner,
		emitter:  emitter,
		clock:    clk,
		logger:   logger.With("component", "watchdog"),
	}
}

// Start runs the periodic check loop and blocks until ctx is
// cancelled. Ticks are not overlap-protected: a tick that outlives the
// interval delays the next one only insofar as the ticker drops
// missed firings.
func (w *Watchdog) Start(ctx context.Context) {
	w.logger.Info("watchdog started", "interval", w.interval, "cooldown", w.cooldown, "services", len(w.services))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce checks every service sequentially. A stuck service delays
// the rest of the tick; that is accepted.
func (w *Watchdog) RunOnce(ctx context.Context) {
	for _, svc := range w.services {
		if svc.HealthURL == "" {
			continue
		}
		w.checkService(ctx, svc)
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Watchdog) checkService(ctx context.Context, svc config.Service) {
	err := w.probe(ctx, svc.HealthURL)
	if err == nil {
		return
	}
	w.logger.Warn("health probe failed, rechecking after cooldown",
		"service", svc.ID, "error", err, "cooldown", w.cooldown)
	w.emitter.Emit(events.Event{
		Type:    events.WatchdogProbeFailed,
		Service: svc.ID,
		Fields:  map[string]string{"error": err.Error(), "check": "first"},
	})

	if err := w.clock.Sleep(ctx, w.cooldown); err != nil {
		return
	}

	err = w.probe(ctx, svc.HealthURL)
	if err == nil {
		w.logger.Info("health recovered during cooldown", "service", svc.ID)
		return
	}
	w.logger.Error("second consecutive probe failure, restarting", "service", svc.ID, "error", err)
	w.emitter.Emit(events.Event{
		Type:    events.WatchdogProbeFailed,
		Service: svc.ID,
		Fields:  map[string]string{"error": err.Error(), "check": "cooldown"},
	})
	w.emitter.Emit(events.Event{Type: events.WatchdogTriggered, Service: svc.ID})

	w.runner.Restart(ctx, svc)
}

func (w *Watchdog) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
