package alerts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/4rctail/restarter/internal/events"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNotifySendsMessageJSON(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		got <- body.Message
		w.WriteHeader(200)
	}))
	defer srv.Close()

	NewWebhookAlerter(srv.URL, quietLogger()).Notify("service down")

	select {
	case msg := <-got:
		if msg != "service down" {
			t.Errorf("message = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook")
	}
}

func TestAlertFiresOnFailureEvent(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	emitter := events.NewEmitter(quietLogger())
	RegisterEventHandler(NewWebhookAlerter(srv.URL, quietLogger()), emitter)

	emitter.Emit(events.Event{
		Type:    events.RestartFailed,
		Service: "svc-1",
		Fields:  map[string]string{"message": "resume not confirmed"},
	})
	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&called) != 1 {
		t.Errorf("webhook called %d times, want 1", atomic.LoadInt32(&called))
	}
}

func TestNoAlertOnSuccessEvent(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	emitter := events.NewEmitter(quietLogger())
	RegisterEventHandler(NewWebhookAlerter(srv.URL, quietLogger()), emitter)

	emitter.Emit(events.Event{Type: events.RestartSucceeded, Service: "svc-1"})
	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&called) != 0 {
		t.Errorf("webhook called %d times, want 0", atomic.LoadInt32(&called))
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	// Must not panic or block.
	NewWebhookAlerter(srv.URL, quietLogger()).Notify("into the void")
	time.Sleep(100 * time.Millisecond)
}

func TestNoopNotifier(t *testing.T) {
	Noop{}.Notify("discarded")
}

func TestMessageForEvents(t *testing.T) {
	if _, ok := messageFor(events.Event{Type: events.ConfigNoServices}); !ok {
		t.Error("no-services event should alert")
	}
	if _, ok := messageFor(events.Event{Type: events.RestartSuspendDegraded, Service: "s"}); !ok {
		t.Error("suspend degraded event should alert")
	}
	if _, ok := messageFor(events.Event{Type: events.RestartStarted}); ok {
		t.Error("started event should not alert")
	}
}
