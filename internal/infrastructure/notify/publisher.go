// Package notify delivers anomaly notifications to the external dispatcher.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/claimsight/risk-engine/internal/domain/vendor"
	"github.com/claimsight/risk-engine/internal/infrastructure/config"
)

// AnomalyNotification is the structured message emitted for a material
// vendor spend deviation.
type AnomalyNotification struct {
	Vendor      string             `json:"vendor"`
	Tier        vendor.AnomalyTier `json:"tier"`
	LatestTotal float64            `json:"latest_total"`
	Mean        float64            `json:"mean"`
	Message     string             `json:"message"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// NewAnomalyNotification builds the notification for an anomaly record.
func NewAnomalyNotification(rec *vendor.AnomalyRecord) AnomalyNotification {
	return AnomalyNotification{
		Vendor:      rec.Vendor,
		Tier:        rec.Tier,
		LatestTotal: rec.LatestTotal,
		Mean:        rec.Mean,
		Message: fmt.Sprintf("Anomaly (%s) for %s: $%.2f vs avg $%.2f",
			rec.Tier, rec.Vendor, rec.LatestTotal, rec.Mean),
		OccurredAt: rec.CreatedAt,
	}
}

// Publisher delivers anomaly notifications.
type Publisher interface {
	Publish(ctx context.Context, n AnomalyNotification) error
	Close() error
}

// New creates a publisher based on configuration. The channel publisher is
// in-process; the NATS publisher pushes to an external dispatcher.
func New(cfg config.NotifyConfig) (Publisher, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelPublisher(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSPublisher(cfg)

	default:
		return nil, fmt.Errorf("unsupported notify publisher type: %s", cfg.Type)
	}
}
