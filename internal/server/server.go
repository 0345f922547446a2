package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/4rctail/restarter/internal/alerts"
	"github.com/4rctail/restarter/internal/config"
	"github.com/4rctail/restarter/internal/events"
	"github.com/4rctail/restarter/internal/restart"
)

// SecretHeader carries the shared secret on inbound webhook calls.
const SecretHeader = "x-shared-secret"

// maxBodyBytes caps inbound webhook payloads. The body is accepted but
// never interpreted.
const maxBodyBytes = 128 << 10

// Restarter is the trigger-facing slice of the restart runner.
type Restarter interface {
	RestartAll(ctx context.Context, services []config.Service) []restart.Outcome
}

// Server exposes the webhook trigger and the health endpoint.
type Server struct {
	secret   string
	services []config.Service
	runner   Restarter
	notifier alerts.Notifier
	emitter  *events.Emitter
	// runCtx outlives individual requests: accepted restart work keeps
	// running after the webhook response and is only cancelled by
	// process shutdown.
	runCtx context.Context
	logger *slog.Logger
}

func New(cfg *config.Config, runner Restarter, notifier alerts.Notifier, emitter *events.Emitter, runCtx context.Context, logger *slog.Logger) *Server {
	l := logger.With("component", "server")
	if cfg.SharedSecret == "" {
		l.Warn("no shared secret configured, webhook only accepts requests without one")
	}
	return &Server{
		secret:   cfg.SharedSecret,
		services: cfg.Services,
		runner:   runner,
		notifier: notifier,
		emitter:  emitter,
		runCtx:   runCtx,
		logger:   l,
	}
}

// Handler returns the http.Handler for the daemon.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	return s.recoverMiddleware(mux)
}

// recoverMiddleware converts handler panics into a 500 and an alert so
// a single bad request can never take the process down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				s.notifier.Notify("restarter: unexpected error handling " + r.URL.Path)
				http.Error(w, `{"ok":false,"error":"internal"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"ok":false,"reason":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, `{"ok":false,"reason":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// The body is accepted but ignored; oversized payloads are rejected.
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		http.Error(w, `{"ok":false,"reason":"payload too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	trigger := strings.TrimPrefix(r.URL.Path, "/webhook/")
	s.logger.Info("webhook accepted", "trigger", trigger, "services", len(s.services))

	if len(s.services) == 0 {
		s.emitter.Emit(events.Event{Type: events.ConfigNoServices})
	} else {
		go s.runRestarts(trigger)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Restart initiated"})
}

// runRestarts is the detached continuation of an accepted webhook call.
// It has its own error boundary: a panic here is alerted, never fatal.
func (s *Server) runRestarts(trigger string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic during restart run", "trigger", trigger, "panic", rec)
			s.notifier.Notify("restarter: unexpected error during restart run")
		}
	}()

	outcomes := s.runner.RestartAll(s.runCtx, s.services)
	ok := 0
	for _, out := range outcomes {
		if out.OK {
			ok++
		}
	}
	s.logger.Info("restart run complete", "trigger", trigger, "succeeded", ok, "total", len(outcomes))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"ok":false,"reason":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "services": len(s.services)})
}

func (s *Server) authorized(r *http.Request) bool {
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
