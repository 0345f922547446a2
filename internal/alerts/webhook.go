package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/4rctail/restarter/internal/events"
)

// Notifier is the best-effort alert capability. Implementations must
// never block the caller and must swallow delivery errors.
type Notifier interface {
	Notify(message string)
}

// Noop discards every alert. Used when no webhook is configured.
type Noop struct{}

func (Noop) Notify(string) {}

// WebhookAlerter delivers alerts as JSON POSTs to a configured URL.
type WebhookAlerter struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewWebhookAlerter(url string, logger *slog.Logger) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "alerts"),
	}
}

// Notify sends the message in a detached goroutine. Failures are
// logged and swallowed.
func (a *WebhookAlerter) Notify(message string) {
	go a.send(message)
}

func (a *WebhookAlerter) send(message string) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		a.logger.Error("marshal alert", "error", err)
		return
	}
	resp, err := a.client.Post(a.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		a.logger.Error("alert delivery failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		a.logger.Error("alert webhook rejected", "status", resp.StatusCode)
	}
}

// RegisterEventHandler wires failure alerts to the event emitter.
// Only escalation-worthy events become alerts; routine lifecycle
// events stay in the logs.
func RegisterEventHandler(n Notifier, emitter *events.Emitter) {
	emitter.OnEvent(func(ev events.Event) {
		if msg, ok := messageFor(ev); ok {
			n.Notify(msg)
		}
	})
}

func messageFor(ev events.Event) (string, bool) {
	switch ev.Type {
	case events.RestartSuspendDegraded:
		return fmt.Sprintf("warning: suspend not confirmed for %s (last status %q), proceeding to resume", ev.Service, ev.Fields["last_status"]), true
	case events.RestartFailed:
		return fmt.Sprintf("restart FAILED for %s: %s", ev.Service, ev.Fields["message"]), true
	case events.ConfigNoServices:
		return "restarter: no services configured, nothing to restart", true
	default:
		return "", false
	}
}
