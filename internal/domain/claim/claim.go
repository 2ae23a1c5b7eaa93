package claim

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claimsight/risk-engine/internal/domain/values"
)

// Claim represents a submitted insurance claim. The risk engine reads the
// claim and its documents, and writes back FraudScore, RiskLevel and
// AIInsights after a scoring run.
type Claim struct {
	ID               uuid.UUID    `json:"id"`
	TenantID         uuid.UUID    `json:"tenant_id"`
	PolicyholderName string       `json:"policyholder_name"`
	ClaimType        string       `json:"claim_type"`
	EstimatedValue   values.Money `json:"estimated_value"`
	SubmittedBy      uuid.UUID    `json:"submitted_by"`
	Status           Status       `json:"status"`
	Documents        []Document   `json:"documents,omitempty"`

	// Scoring output, nil until the claim has been scored
	FraudScore *float64   `json:"fraud_score,omitempty"`
	RiskLevel  *RiskLevel `json:"risk_level,omitempty"`
	AIInsights *Insights  `json:"ai_insights,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a file attached to a claim.
type Document struct {
	ID         uuid.UUID `json:"id"`
	ClaimID    uuid.UUID `json:"claim_id"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Status int

const (
	StatusSubmitted Status = iota
	StatusUnderReview
	StatusApproved
	StatusRejected
	StatusPaid
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusUnderReview:
		return "under_review"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusPaid:
		return "paid"
	default:
		return "unknown"
	}
}

// ParseStatus maps a database enum string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "submitted":
		return StatusSubmitted, nil
	case "under_review":
		return StatusUnderReview, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "paid":
		return StatusPaid, nil
	default:
		return 0, fmt.Errorf("unknown claim status: %q", s)
	}
}

// Insights is the structured explanation attached to a scored claim.
// Produced best-effort; FallbackInsights is used when generation fails.
type Insights struct {
	RiskFactors     []string `json:"risk_factors"`
	Recommendations []string `json:"recommendations"`
	ConfidenceLevel string   `json:"confidence_level"`
	Summary         string   `json:"summary"`
}

// FallbackInsights is the deterministic payload returned when the
// natural-language explanation service fails or times out.
func FallbackInsights() *Insights {
	return &Insights{
		RiskFactors:     []string{"analysis unavailable"},
		Recommendations: []string{"manual review recommended"},
		ConfidenceLevel: "low",
		Summary:         "automated analysis failed, manual review required",
	}
}

// NewClaim creates a claim in the submitted state.
func NewClaim(tenantID uuid.UUID, policyholder, claimType string, value values.Money, submittedBy uuid.UUID) (*Claim, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID cannot be nil")
	}
	if policyholder == "" {
		return nil, fmt.Errorf("policyholder name cannot be empty")
	}
	if claimType == "" {
		return nil, fmt.Errorf("claim type cannot be empty")
	}
	if submittedBy == uuid.Nil {
		return nil, fmt.Errorf("submitter ID cannot be nil")
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("estimated value cannot be negative")
	}

	now := time.Now()
	return &Claim{
		ID:               uuid.New(),
		TenantID:         tenantID,
		PolicyholderName: policyholder,
		ClaimType:        claimType,
		EstimatedValue:   value,
		SubmittedBy:      submittedBy,
		Status:           StatusSubmitted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AttachDocument adds a document to the claim.
func (c *Claim) AttachDocument(filename, mimeType string, size int64) Document {
	doc := Document{
		ID:         uuid.New(),
		ClaimID:    c.ID,
		Filename:   filename,
		FileSize:   size,
		MimeType:   mimeType,
		UploadedAt: time.Now(),
	}
	c.Documents = append(c.Documents, doc)
	c.UpdatedAt = time.Now()
	return doc
}

// ApplyAssessment records the outcome of a scoring run on the claim.
func (c *Claim) ApplyAssessment(score float64, level RiskLevel, insights *Insights) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("fraud score must be in [0,1], got %f", score)
	}
	c.FraudScore = &score
	c.RiskLevel = &level
	c.AIInsights = insights
	c.UpdatedAt = time.Now()
	return nil
}
