package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event type constants.
const (
	RestartStarted         = "restart.started"
	RestartSuspendDegraded = "restart.suspend_degraded"
	RestartSucceeded       = "restart.succeeded"
	RestartFailed          = "restart.failed"
	RestartSkipped         = "restart.skipped"
	WatchdogProbeFailed    = "watchdog.probe_failed"
	WatchdogTriggered      = "watchdog.triggered"
	ConfigNoServices       = "config.no_services"
)

// Event represents a restart lifecycle event for a managed service.
type Event struct {
	Type      string            `json:"type"`
	Service   string            `json:"service,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Emitter logs events and dispatches them to registered handlers.
type Emitter struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers []func(Event)
}

// NewEmitter creates a new event emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		logger: logger.With("component", "events"),
	}
}

// Emit logs the event and calls all registered handlers.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	attrs := []any{
		"event", ev.Type,
		"service", ev.Service,
	}
	if ev.RunID != "" {
		attrs = append(attrs, "run_id", ev.RunID)
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, k, v)
	}
	e.logger.Info("event emitted", attrs...)

	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()

	for _, fn := range handlers {
		if fn != nil {
			fn(ev)
		}
	}
}

// OnEvent registers a handler to be called for every emitted event.
// Returns an ID that can be used with RemoveHandler.
func (e *Emitter) OnEvent(fn func(Event)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
	return len(e.handlers) - 1
}

// RemoveHandler removes a handler by its ID.
func (e *Emitter) RemoveHandler(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id >= 0 && id < len(e.handlers) {
		e.handlers[id] = nil
	}
}
