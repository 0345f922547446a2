package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/4rctail/restarter/internal/clock"
)

// StatusSource is the slice of Client the poller depends on.
type StatusSource interface {
	Status(ctx context.Context, serviceID, credential string) (string, error)
}

// PollResult is the outcome of one confirmation poll.
type PollResult struct {
	Confirmed bool
	// Status is the last normalized status observed, empty if no query
	// ever succeeded.
	Status string
}

// Poller repeatedly queries a service's status until it matches an
// acceptable value or a deadline elapses. Query failures are treated
// as "not yet confirmed", never as hard errors.
type Poller struct {
	source   StatusSource
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

func NewPoller(source StatusSource, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		clock:    clk,
		logger:   logger.With("component", "poller"),
	}
}

// PollUntil blocks until the service reports a status in acceptable
// (case-insensitive), the timeout elapses, or ctx is cancelled.
func (p *Poller) PollUntil(ctx context.Context, serviceID, credential string, acceptable []string, timeout time.Duration) PollResult {
	set := make(map[string]struct{}, len(acceptable))
	for _, s := range acceptable {
		if n := Normalize(s); n != "" {
			set[n] = struct{}{}
		}
	}

	deadline := p.clock.Now().Add(timeout)
	var last string

	for {
		status, err := p.source.Status(ctx, serviceID, credential)
		if err != nil {
			p.logger.Warn("status query failed, will retry", "service", serviceID, "error", err)
		} else if n := Normalize(status); n != "" {
			last = n
			if _, ok := set[n]; ok {
				p.logger.Info("status confirmed", "service", serviceID, "status", n)
				return PollResult{Confirmed: true, Status: n}
			}
			p.logger.Debug("status not yet acceptable", "service", serviceID, "status", n)
		}

		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return PollResult{Confirmed: false, Status: last}
		}
		if !p.clock.Now().Before(deadline) {
			p.logger.Warn("confirmation timed out", "service", serviceID, "timeout", timeout, "last_status", last)
			return PollResult{Confirmed: false, Status: last}
		}
	}
}
