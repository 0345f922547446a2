package restart

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/4rctail/restarter/internal/clock"
	"github.com/4rctail/restarter/internal/config"
	"github.com/4rctail/restarter/internal/events"
	"github.com/4rctail/restarter/internal/lifecycle"
)

// ActionPerformer issues one lifecycle command per call.
type ActionPerformer interface {
	Perform(ctx context.Context, serviceID string, action lifecycle.Action, credential string) error
}

// ConfirmPoller blocks until a service reports an acceptable status or
// the timeout elapses.
type ConfirmPoller interface {
	PollUntil(ctx context.Context, serviceID, credential string, acceptable []string, timeout time.Duration) lifecycle.PollResult
}

// Policy holds the timing and attempt budget for both phases.
type Policy struct {
	MaxAttempts       int
	SuspendTimeout    time.Duration
	ResumeTimeout     time.Duration
	BackoffStep       time.Duration
	SettleDelay       time.Duration
	SuspendedStatuses []string
	ResumedStatuses   []string
}

// PolicyFromConfig maps the config section onto a Policy.
func PolicyFromConfig(c config.Restart) Policy {
	return Policy{
		MaxAttempts:       c.MaxAttempts,
		SuspendTimeout:    c.SuspendTimeout,
		ResumeTimeout:     c.ResumeTimeout,
		BackoffStep:       c.BackoffStep,
		SettleDelay:       c.SettleDelay,
		SuspendedStatuses: c.SuspendedStatuses,
		ResumedStatuses:   c.ResumedStatuses,
	}
}

// Runner drives the two-phase restart sequence: suspend then confirm,
// settle, resume then confirm. It never panics past an attempt and
// always resolves to an Outcome.
type Runner struct {
	actions  ActionPerformer
	poller   ConfirmPoller
	policy   Policy
	clock    clock.Clock
	emitter  *events.Emitter
	inflight *tracker
	logger   *slog.Logger
}

func NewRunner(actions ActionPerformer, poller ConfirmPoller, policy Policy, clk clock.Clock, emitter *events.Emitter, logger *slog.Logger) *Runner {
	return &Runner{
		actions:  actions,
		poller:   poller,
		policy:   policy,
		clock:    clk,
		emitter:  emitter,
		inflight: newTracker(),
		logger:   logger.With("component", "restart"),
	}
}

// Restart runs the full sequence for one service. Suspend exhaustion
// degrades to a warning and never blocks the resume phase; only resume
// exhaustion fails the restart.
func (r *Runner) Restart(ctx context.Context, svc config.Service) Outcome {
	runID := uuid.New().String()
	logger := r.logger.With("service", svc.ID, "run_id", runID)

	if !r.inflight.begin(svc.ID) {
		logger.Warn("restart already in flight, skipping")
		r.emitter.Emit(events.Event{Type: events.RestartSkipped, Service: svc.ID, RunID: runID})
		return Outcome{
			ServiceID: svc.ID,
			RunID:     runID,
			Skipped:   true,
			Message:   "restart already in flight",
		}
	}
	defer r.inflight.end(svc.ID)

	logger.Info("restart starting", "name", svc.Name())
	r.emitter.Emit(events.Event{Type: events.RestartStarted, Service: svc.ID, RunID: runID})

	out := Outcome{ServiceID: svc.ID, RunID: runID}

	out.Suspend = r.runPhase(ctx, logger, svc, PhaseSuspend)
	if !out.Suspend.Confirmed {
		logger.Warn("suspend phase exhausted, proceeding to resume anyway",
			"attempts", out.Suspend.AttemptsUsed,
			"last_status", out.Suspend.LastStatus,
		)
		r.emitter.Emit(events.Event{
			Type:    events.RestartSuspendDegraded,
			Service: svc.ID,
			RunID:   runID,
			Fields: map[string]string{
				"attempts":    strconv.Itoa(out.Suspend.AttemptsUsed),
				"last_status": out.Suspend.LastStatus,
			},
		})
	}

	// Settle between phases regardless of suspend outcome.
	if err := r.clock.Sleep(ctx, r.policy.SettleDelay); err != nil {
		logger.Warn("cancelled during settle delay")
	}

	out.Resume = r.runPhase(ctx, logger, svc, PhaseResume)
	if out.Resume.Confirmed {
		out.OK = true
		logger.Info("restart succeeded",
			"suspend_attempts", out.Suspend.AttemptsUsed,
			"resume_attempts", out.Resume.AttemptsUsed,
		)
		r.emitter.Emit(events.Event{Type: events.RestartSucceeded, Service: svc.ID, RunID: runID})
		return out
	}

	out.FailedPhase = PhaseResume
	out.Message = fmt.Sprintf("resume not confirmed after %d attempts (last status %q)",
		out.Resume.AttemptsUsed, out.Resume.LastStatus)
	logger.Error("restart failed", "message", out.Message)
	r.emitter.Emit(events.Event{
		Type:    events.RestartFailed,
		Service: svc.ID,
		RunID:   runID,
		Fields: map[string]string{
			"message":  out.Message,
			"attempts": strconv.Itoa(out.Resume.AttemptsUsed),
		},
	})
	return out
}

// RestartAll restarts every service in order. One service's failure
// does not stop or cancel the rest.
func (r *Runner) RestartAll(ctx context.Context, services []config.Service) []Outcome {
	outcomes := make([]Outcome, 0, len(services))
	for _, svc := range services {
		outcomes = append(outcomes, r.Restart(ctx, svc))
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes
}

func (r *Runner) runPhase(ctx context.Context, logger *slog.Logger, svc config.Service, phase Phase) PhaseOutcome {
	var (
		action     lifecycle.Action
		acceptable []string
		timeout    time.Duration
	)
	switch phase {
	case PhaseSuspend:
		action, acceptable, timeout = lifecycle.ActionSuspend, r.policy.SuspendedStatuses, r.policy.SuspendTimeout
	case PhaseResume:
		action, acceptable, timeout = lifecycle.ActionResume, r.policy.ResumedStatuses, r.policy.ResumeTimeout
	}

	out := PhaseOutcome{Phase: phase}
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * r.policy.BackoffStep
			logger.Info("backing off before retry", "phase", phase, "attempt", attempt, "backoff", backoff)
			if err := r.clock.Sleep(ctx, backoff); err != nil {
				return out
			}
		}

		out.AttemptsUsed = attempt
		confirmed, last := r.attempt(ctx, logger, svc, action, acceptable, timeout)
		if last != "" {
			out.LastStatus = last
		}
		if confirmed {
			out.Confirmed = true
			return out
		}
		logger.Warn("phase attempt failed", "phase", phase, "attempt", attempt, "max", r.policy.MaxAttempts)

		if ctx.Err() != nil {
			return out
		}
	}
	return out
}

// attempt issues one lifecycle action and, if it succeeded, polls for
// confirmation. Anything that goes wrong (remote errors, panics) only
// fails this attempt.
func (r *Runner) attempt(ctx context.Context, logger *slog.Logger, svc config.Service, action lifecycle.Action, acceptable []string, timeout time.Duration) (confirmed bool, last string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic during restart attempt", "action", action, "panic", rec)
			confirmed = false
		}
	}()

	if err := r.actions.Perform(ctx, svc.ID, action, svc.Credential); err != nil {
		logger.Warn("lifecycle action failed", "action", action, "error", err)
		return false, ""
	}

	res := r.poller.PollUntil(ctx, svc.ID, svc.Credential, acceptable, timeout)
	return res.Confirmed, res.Status
}
