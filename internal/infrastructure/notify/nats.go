package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/claimsight/risk-engine/internal/infrastructure/config"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 5 * time.Second
)

// NATSPublisher pushes anomaly notifications to an external dispatcher
// over NATS.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS with reconnect resilience.
func NewNATSPublisher(cfg config.NotifyConfig) (*NATSPublisher, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "risk.anomaly"
	}

	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected",
				"error", err,
				"will_reconnect", !nc.IsClosed(),
			)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected",
				"url", nc.ConnectedUrl(),
			)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
	}

	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS notification publisher connected",
		"url", conn.ConnectedUrl(),
		"subject", subject,
	)

	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish sends one notification to the configured subject.
func (p *NATSPublisher) Publish(_ context.Context, n AnomalyNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
