package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsight/risk-engine/internal/domain/claim"
	domainerrors "github.com/claimsight/risk-engine/internal/domain/errors"
	"github.com/claimsight/risk-engine/internal/domain/values"
	"github.com/claimsight/risk-engine/internal/service/scoring"
)

// ClaimRepository handles claim persistence using PostgreSQL
type ClaimRepository struct {
	db *pgxpool.Pool
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// GetByID retrieves a claim with its attached documents
func (r *ClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*claim.Claim, error) {
	query := `
		SELECT
			id, tenant_id, policyholder_name, claim_type,
			estimated_value, currency, submitted_by, status,
			fraud_score, risk_level, ai_insights,
			created_at, updated_at
		FROM claims
		WHERE id = $1`

	var c claim.Claim
	var amount string
	var currency string
	var statusStr string
	var riskLevelStr *string
	var insightsJSON []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TenantID, &c.PolicyholderName, &c.ClaimType,
		&amount, &currency, &c.SubmittedBy, &statusStr,
		&c.FraudScore, &riskLevelStr, &insightsJSON,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerrors.ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	value, err := values.NewMoneyFromString(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid estimated value for claim %s: %w", id, err)
	}
	c.EstimatedValue = value

	status, err := claim.ParseStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid status for claim %s: %w", id, err)
	}
	c.Status = status

	if riskLevelStr != nil {
		level, err := claim.ParseRiskLevel(*riskLevelStr)
		if err != nil {
			return nil, fmt.Errorf("invalid risk level for claim %s: %w", id, err)
		}
		c.RiskLevel = &level
	}

	if len(insightsJSON) > 0 {
		var insights claim.Insights
		if err := json.Unmarshal(insightsJSON, &insights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal insights for claim %s: %w", id, err)
		}
		c.AIInsights = &insights
	}

	docs, err := r.documentsByClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Documents = docs

	return &c, nil
}

func (r *ClaimRepository) documentsByClaim(ctx context.Context, claimID uuid.UUID) ([]claim.Document, error) {
	query := `
		SELECT id, claim_id, filename, file_size, mime_type, uploaded_at
		FROM claim_documents
		WHERE claim_id = $1
		ORDER BY uploaded_at`

	rows, err := r.db.Query(ctx, query, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim documents: %w", err)
	}
	defer rows.Close()

	var docs []claim.Document
	for rows.Next() {
		var d claim.Document
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.Filename, &d.FileSize, &d.MimeType, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CountDuplicates counts other claims in the same tenant with the same
// policyholder name and claim type created within the window, along with
// their average estimated value
func (r *ClaimRepository) CountDuplicates(ctx context.Context, c *claim.Claim, window time.Duration) (*scoring.DuplicateStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(estimated_value), 0)
		FROM claims
		WHERE tenant_id = $1
		  AND policyholder_name = $2
		  AND claim_type = $3
		  AND id != $4
		  AND created_at > $5`

	var stats scoring.DuplicateStats
	err := r.db.QueryRow(ctx, query,
		c.TenantID, c.PolicyholderName, c.ClaimType, c.ID, time.Now().Add(-window),
	).Scan(&stats.Count, &stats.AverageAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to count duplicate claims: %w", err)
	}

	return &stats, nil
}

// RecentSubmissionCount counts other claims by the same submitter in the
// same tenant created within the window
func (r *ClaimRepository) RecentSubmissionCount(ctx context.Context, c *claim.Claim, window time.Duration) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM claims
		WHERE tenant_id = $1
		  AND submitted_by = $2
		  AND id != $3
		  AND created_at > $4`

	var count int
	err := r.db.QueryRow(ctx, query,
		c.TenantID, c.SubmittedBy, c.ID, time.Now().Add(-window),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent submissions: %w", err)
	}

	return count, nil
}

// SubmitterStats aggregates the submitter's claims over the window
func (r *ClaimRepository) SubmitterStats(ctx context.Context, c *claim.Claim, window time.Duration) (*scoring.SubmitterStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(estimated_value), 0),
			COUNT(*) FILTER (WHERE status = 'rejected')
		FROM claims
		WHERE tenant_id = $1
		  AND submitted_by = $2
		  AND created_at > $3`

	var stats scoring.SubmitterStats
	err := r.db.QueryRow(ctx, query,
		c.TenantID, c.SubmittedBy, time.Now().Add(-window),
	).Scan(&stats.TotalCount, &stats.AverageAmount, &stats.RejectedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to load submitter stats: %w", err)
	}

	return &stats, nil
}

// UpdateFraudAssessment writes the scoring fields back onto the claim
func (r *ClaimRepository) UpdateFraudAssessment(ctx context.Context, id uuid.UUID, score float64, level claim.RiskLevel, insights *claim.Insights) error {
	insightsJSON, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}

	query := `
		UPDATE claims
		SET fraud_score = $2, risk_level = $3, ai_insights = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, score, level.String(), insightsJSON)
	if err != nil {
		return fmt.Errorf("failed to update fraud assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrClaimNotFound
	}

	return nil
}

// TenantFraudStats aggregates scored claims for a tenant over the window
func (r *ClaimRepository) TenantFraudStats(ctx context.Context, tenantID uuid.UUID, window time.Duration) (*scoring.TenantFraudStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(fraud_score), 0),
			COUNT(*) FILTER (WHERE fraud_score >= 0.4),
			COUNT(*) FILTER (WHERE fraud_score >= 0.6),
			COUNT(*) FILTER (WHERE fraud_score >= 0.8)
		FROM claims
		WHERE tenant_id = $1
		  AND fraud_score IS NOT NULL
		  AND created_at > $2`

	stats := scoring.TenantFraudStats{TenantID: tenantID}
	err := r.db.QueryRow(ctx, query, tenantID, time.Now().Add(-window)).Scan(
		&stats.TotalScored, &stats.AverageScore,
		&stats.MediumOrAbove, &stats.HighOrAbove, &stats.Critical,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant fraud stats: %w", err)
	}

	return &stats, nil
}
