// Package notify publishes pipeline events to NATS so external consumers
// (chat bots, deployment hooks) can react to builds and publishes.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/pipeline"
)

// Notifier forwards pipeline events to a NATS subject.
type Notifier struct {
	conn    *nats.Conn
	subject string
}

// NewNotifier connects to the configured NATS server. Returns nil (no error)
// when notifications are not configured.
func NewNotifier(cfg *config.Config) (*Notifier, error) {
	if cfg.Notify.NATSURL == "" {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.Notify.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("Connected build notifier", "url", cfg.Notify.NATSURL, "subject", cfg.Notify.Subject)
	return &Notifier{conn: conn, subject: cfg.Notify.Subject}, nil
}

// Attach subscribes the notifier to the bus events worth broadcasting.
// Notification failures are logged, never propagated: a flaky broker must
// not fail a build.
func (n *Notifier) Attach(bus *pipeline.Bus) {
	if n == nil {
		return
	}
	for _, name := range []string{"build.started", "build.finished", "site.published"} {
		bus.Subscribe(name, func(e pipeline.Event) error {
			if err := n.publish(e); err != nil {
				slog.Warn("Failed to publish notification", "event", e.Name(), "error", err)
			}
			return nil
		})
	}
}

type envelope struct {
	Event   string         `json:"event"`
	BuildID string         `json:"build_id"`
	Data    pipeline.Event `json:"data"`
}

func (n *Notifier) publish(e pipeline.Event) error {
	data, err := json.Marshal(envelope{Event: e.Name(), BuildID: e.GetBuildID(), Data: e})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", n.subject, e.Name())
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
