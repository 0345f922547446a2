package events

import (
	"log/slog"
	"os"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEmitDispatchesToHandlers(t *testing.T) {
	e := NewEmitter(quietLogger())
	var got []Event
	e.OnEvent(func(ev Event) { got = append(got, ev) })

	e.Emit(Event{Type: RestartStarted, Service: "svc-1", RunID: "run-1"})

	if len(got) != 1 {
		t.Fatalf("handled %d events, want 1", len(got))
	}
	if got[0].Type != RestartStarted || got[0].Service != "svc-1" {
		t.Errorf("event = %+v", got[0])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}

func TestRemoveHandler(t *testing.T) {
	e := NewEmitter(quietLogger())
	calls := 0
	id := e.OnEvent(func(Event) { calls++ })
	e.RemoveHandler(id)

	e.Emit(Event{Type: RestartSucceeded, Service: "svc-1"})

	if calls != 0 {
		t.Errorf("removed handler called %d times", calls)
	}
}

func TestMultipleHandlers(t *testing.T) {
	e := NewEmitter(quietLogger())
	a, b := 0, 0
	e.OnEvent(func(Event) { a++ })
	e.OnEvent(func(Event) { b++ })

	e.Emit(Event{Type: WatchdogTriggered, Service: "svc-1"})

	if a != 1 || b != 1 {
		t.Errorf("handlers called %d/%d times, want 1/1", a, b)
	}
}
