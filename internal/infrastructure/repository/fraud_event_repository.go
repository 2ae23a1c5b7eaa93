package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsight/risk-engine/internal/service/scoring"
)

// FraudEventRepository handles fraud event persistence using PostgreSQL.
// Events are append-only.
type FraudEventRepository struct {
	db *pgxpool.Pool
}

// NewFraudEventRepository creates a new fraud event repository
func NewFraudEventRepository(db *pgxpool.Pool) *FraudEventRepository {
	return &FraudEventRepository{db: db}
}

// Save appends a fraud event
func (r *FraudEventRepository) Save(ctx context.Context, event *scoring.FraudEvent) error {
	detailJSON, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal event detail: %w", err)
	}

	query := `
		INSERT INTO fraud_events (
			id, claim_id, tenant_id, run_id, signal,
			severity, description, confidence, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		event.ID, event.ClaimID, event.TenantID, event.RunID, string(event.Signal),
		event.Severity, event.Description, event.Confidence, detailJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save fraud event: %w", err)
	}

	return nil
}

// LatestConfidence returns the confidence of the most recent event for
// (claim, signal), or ok=false if none exists
func (r *FraudEventRepository) LatestConfidence(ctx context.Context, claimID uuid.UUID, signal scoring.Signal) (float64, bool, error) {
	query := `
		SELECT confidence
		FROM fraud_events
		WHERE claim_id = $1 AND signal = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var confidence float64
	err := r.db.QueryRow(ctx, query, claimID, string(signal)).Scan(&confidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to query latest fraud event: %w", err)
	}

	return confidence, true, nil
}

// ListByClaim returns all events for a claim, newest first
func (r *FraudEventRepository) ListByClaim(ctx context.Context, claimID uuid.UUID, limit int) ([]*scoring.FraudEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, claim_id, tenant_id, run_id, signal,
		       severity, description, confidence, detail, created_at
		FROM fraud_events
		WHERE claim_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, claimID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fraud events: %w", err)
	}
	defer rows.Close()

	var events []*scoring.FraudEvent
	for rows.Next() {
		var e scoring.FraudEvent
		var signalStr string
		var detailJSON []byte
		if err := rows.Scan(
			&e.ID, &e.ClaimID, &e.TenantID, &e.RunID, &signalStr,
			&e.Severity, &e.Description, &e.Confidence, &detailJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fraud event: %w", err)
		}
		e.Signal = scoring.Signal(signalStr)
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event detail: %w", err)
			}
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
