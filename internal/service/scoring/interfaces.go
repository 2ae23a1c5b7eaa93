package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/claimsight/risk-engine/internal/domain/claim"
)

// Service defines the claim risk-scoring interface
type Service interface {
	// ScoreClaim runs all signal extractors against a claim and returns the
	// composite assessment; on success the score, risk level and insights
	// are written back onto the claim record
	ScoreClaim(ctx context.Context, claimID uuid.UUID) (*ScoreResult, error)
	// GetRiskScore returns the current risk score for a claim, served from
	// cache when available
	GetRiskScore(ctx context.Context, claimID uuid.UUID) (float64, claim.RiskLevel, error)
	// GetFraudStatistics returns per-tenant scoring aggregates over a
	// trailing window
	GetFraudStatistics(ctx context.Context, tenantID uuid.UUID, window time.Duration) (*TenantFraudStats, error)
}

// ClaimRepository defines the claim data access the extractors need
type ClaimRepository interface {
	// GetByID retrieves a claim with its attached documents
	GetByID(ctx context.Context, id uuid.UUID) (*claim.Claim, error)
	// CountDuplicates counts other claims in the same tenant with the same
	// policyholder name and claim type created within the window
	CountDuplicates(ctx context.Context, c *claim.Claim, window time.Duration) (*DuplicateStats, error)
	// RecentSubmissionCount counts other claims by the same submitter in
	// the same tenant created within the window
	RecentSubmissionCount(ctx context.Context, c *claim.Claim, window time.Duration) (int, error)
	// SubmitterStats aggregates the submitter's claims over the window
	SubmitterStats(ctx context.Context, c *claim.Claim, window time.Duration) (*SubmitterStats, error)
	// UpdateFraudAssessment writes the scoring fields back onto the claim
	UpdateFraudAssessment(ctx context.Context, id uuid.UUID, score float64, level claim.RiskLevel, insights *claim.Insights) error
	// TenantFraudStats aggregates scored claims for a tenant over the window
	TenantFraudStats(ctx context.Context, tenantID uuid.UUID, window time.Duration) (*TenantFraudStats, error)
}

// EventRepository defines fraud event persistence
type EventRepository interface {
	// Save appends a fraud event
	Save(ctx context.Context, event *FraudEvent) error
	// LatestConfidence returns the confidence of the most recent event for
	// (claim, signal), or ok=false if none exists
	LatestConfidence(ctx context.Context, claimID uuid.UUID, signal Signal) (float64, bool, error)
}

// InsightGenerator produces a natural-language explanation for a scored
// claim. Implementations never return an error: on any failure they return
// the deterministic fallback payload.
type InsightGenerator interface {
	Generate(ctx context.Context, c *claim.Claim, signals []SignalResult) *claim.Insights
}

// RiskCache caches computed risk scores by claim
type RiskCache interface {
	Get(ctx context.Context, claimID uuid.UUID) (float64, claim.RiskLevel, bool, error)
	Set(ctx context.Context, claimID uuid.UUID, score float64, level claim.RiskLevel) error
}

// SignalResult is the outcome of one extractor for one scoring run
type SignalResult struct {
	Signal Signal
	Score  float64 // 0.0 - 1.0
	Weight float64
	Detail map[string]interface{}
}

// FraudEvent is the append-only audit record for a material signal
type FraudEvent struct {
	ID          uuid.UUID
	ClaimID     uuid.UUID
	TenantID    uuid.UUID
	RunID       uuid.UUID
	Signal      Signal
	Severity    string // "low", "medium", "high"
	Description string
	Confidence  float64
	Detail      map[string]interface{}
	CreatedAt   time.Time
}

// ScoreResult is the full outcome of one scoring run
type ScoreResult struct {
	ClaimID         uuid.UUID
	RunID           uuid.UUID
	Score           float64
	RiskLevel       claim.RiskLevel
	Signals         []SignalResult
	Insights        *claim.Insights
	Recommendations []string
	ScoredAt        time.Time
}

// DuplicateStats summarizes potential duplicate claims
type DuplicateStats struct {
	Count         int
	AverageAmount float64
}

// SubmitterStats summarizes a submitter's trailing claim history
type SubmitterStats struct {
	TotalCount    int
	AverageAmount float64
	RejectedCount int
}

// RejectionRate returns rejected/total, or 0 when the submitter has no
// claims in the window
func (s *SubmitterStats) RejectionRate() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.RejectedCount) / float64(s.TotalCount)
}

// TenantFraudStats aggregates scored claims for one tenant
type TenantFraudStats struct {
	TenantID      uuid.UUID
	TotalScored   int
	AverageScore  float64
	MediumOrAbove int
	HighOrAbove   int
	Critical      int
}
