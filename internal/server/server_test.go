package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/4rctail/restarter/internal/config"
	"github.com/4rctail/restarter/internal/events"
	"github.com/4rctail/restarter/internal/restart"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	panics  bool
}

func (f *fakeRunner) RestartAll(ctx context.Context, services []config.Service) []restart.Outcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.panics {
		panic("runner exploded")
	}
	outcomes := make([]restart.Outcome, 0, len(services))
	for _, svc := range services {
		outcomes = append(outcomes, restart.Outcome{ServiceID: svc.ID, OK: true})
	}
	return outcomes
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	messages chan string
}

func (f *fakeNotifier) Notify(message string) {
	select {
	case f.messages <- message:
	default:
	}
}

func testServer(t *testing.T, services []config.Service, runner *fakeRunner) (*Server, *fakeNotifier, *events.Emitter) {
	t.Helper()
	cfg := &config.Config{
		SharedSecret: "hunter2",
		Services:     services,
	}
	notifier := &fakeNotifier{messages: make(chan string, 8)}
	emitter := events.NewEmitter(quietLogger())
	return New(cfg, runner, notifier, emitter, context.Background(), quietLogger()), notifier, emitter
}

func someServices() []config.Service {
	return []config.Service{
		{ID: "svc-1", Credential: "a"},
		{ID: "svc-2", Credential: "b"},
	}
}

func TestWebhookMissingSecret(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, _ := testServer(t, someServices(), runner)

	req := httptest.NewRequest(http.MethodPost, "/webhook/deploy", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", w.Code)
	}
	if runner.callCount() != 0 {
		t.Error("runner must not be invoked on unauthorized calls")
	}
}

func TestWebhookWrongSecret(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, _ := testServer(t, someServices(), runner)

	req := httptest.NewRequest(http.MethodPost, "/webhook/deploy", nil)
	req.Header.Set(SecretHeader, "wrong")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", w.Code)
	}
	var resp struct {
		OK     bool   `json:"ok"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(w.Body.Bytes()), &resp); err != nil {
		t.Fatalf("parse body %q: %v", w.Body.String(), err)
	}
	if resp.OK || resp.Reason != "unauthorized" {
		t.Errorf("body = %+v", resp)
	}
	if runner.callCount() != 0 {
		t.Error("runner must not be invoked on unauthorized calls")
	}
}

func TestWebhookAcceptedRunsRestarts(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 1)}
	srv, _, _ := testServer(t, someServices(), runner)

	req := httptest.NewRequest(http.MethodPost, "/webhook/deploy", bytes.NewReader([]byte(`{"ignored":true}`)))
	req.Header.Set(SecretHeader, "hunter2")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Message != "Restart initiated" {
		t.Errorf("body = %+v", resp)
	}

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("restart run never started")
	}
}

func TestWebhookEmptyServiceList(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, emitter := testServer(t, nil, runner)

	var mu sync.Mutex
	noServices := 0
	emitter.OnEvent(func(ev events.Event) {
		if ev.Type == events.ConfigNoServices {
			mu.Lock()
			noServices++
			mu.Unlock()
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/deploy", nil)
	req.Header.Set(SecretHeader, "hunter2")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("code = %d, want 200 even with no services", w.Code)
	}
	mu.Lock()
	got := noServices
	mu.Unlock()
	if got != 1 {
		t.Errorf("no-services events = %d, want exactly 1", got)
	}
	if runner.callCount() != 0 {
		t.Error("runner must not run with no services")
	}
}

func TestWebhookOversizedBody(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, _ := testServer(t, someServices(), runner)

	big := bytes.Repeat([]byte("x"), maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/webhook/deploy", bytes.NewReader(big))
	req.Header.Set(SecretHeader, "hunter2")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("code = %d, want 413", w.Code)
	}
	if runner.callCount() != 0 {
		t.Error("runner must not run for rejected payloads")
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	runner := &fakeRunner{}
	srv, _, _ := testServer(t, someServices(), runner)

	req := httptest.NewRequest(http.MethodGet, "/webhook/deploy", nil)
	req.Header.Set(SecretHeader, "hunter2")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", w.Code)
	}
}

func TestRunnerPanicIsAlertedNotFatal(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 1), panics: true}
	srv, notifier, _ := testServer(t, someServices(), runner)

	req := httptest.NewRequest(http.MethodPost, "/webhook/deploy", nil)
	req.Header.Set(SecretHeader, "hunter2")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	select {
	case <-notifier.messages:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert for the panicking restart run")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(t, someServices(), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}
	var resp struct {
		OK       bool `json:"ok"`
		Services int  `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Services != 2 {
		t.Errorf("body = %+v, want ok with 2 services", resp)
	}
}
