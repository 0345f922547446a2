package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/4rctail/restarter/internal/events"
)

// Config holds the NATS relay configuration.
type Config struct {
	URL            string
	Token          string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1, // infinite
	}
}

// Envelope is the standardised message published for every event.
type Envelope struct {
	ID        string       `json:"id"`
	Source    string       `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
	Event     events.Event `json:"event"`
}

// Relay publishes every emitted event to a NATS subject hierarchy.
// Publishing is best-effort: failures are logged, never surfaced.
type Relay struct {
	nc     *nats.Conn
	source string
	logger *slog.Logger
}

// Connect creates a relay connected to NATS.
func Connect(cfg Config, source string, logger *slog.Logger) (*Relay, error) {
	l := logger.With("component", "relay")
	opts := []nats.Option{
		nats.Name(source),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("relay disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			l.Info("relay reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("relay connect: %w", err)
	}

	return &Relay{nc: nc, source: source, logger: l}, nil
}

// Subject returns the subject an event is published on.
func Subject(ev events.Event) string {
	service := ev.Service
	if service == "" {
		service = "_system"
	}
	return fmt.Sprintf("restarter.service.%s.%s", service, ev.Type)
}

// Publish sends one event wrapped in an Envelope.
func (r *Relay) Publish(ev events.Event) error {
	env := Envelope{
		ID:        uuid.New().String(),
		Source:    r.source,
		Timestamp: time.Now().UTC(),
		Event:     ev,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return r.nc.Publish(Subject(ev), data)
}

// RegisterEventHandler wires the relay to the event emitter.
func (r *Relay) RegisterEventHandler(emitter *events.Emitter) {
	emitter.OnEvent(func(ev events.Event) {
		if err := r.Publish(ev); err != nil {
			r.logger.Warn("event publish failed", "event", ev.Type, "error", err)
		}
	})
}

// Close drains and closes the NATS connection.
func (r *Relay) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}
