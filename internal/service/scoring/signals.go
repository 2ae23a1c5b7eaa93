package scoring

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/claimsight/risk-engine/internal/domain/claim"
)

// Trailing windows used by the history-backed extractors.
const (
	duplicateWindow  = 30 * 24 * time.Hour
	rapidWindow      = time.Hour
	behavioralWindow = 90 * 24 * time.Hour
)

const (
	largeDocumentBytes = 10 * 1024 * 1024
	roundAmountStep    = 1000
	roundAmountFloor   = 10000
	largeAmountFloor   = 100000
)

// executableExtensions flags documents whose extension indicates an
// executable or script payload.
var executableExtensions = map[string]bool{
	"exe": true,
	"bat": true,
	"cmd": true,
	"scr": true,
}

// Extractor is one independent fraud check. Extractors are read-only and
// stateless per invocation; they tolerate missing history by scoring 0.
type Extractor interface {
	Name() Signal
	Extract(ctx context.Context, c *claim.Claim) (SignalResult, error)
}

// duplicateClaimExtractor counts recent claims with the same policyholder
// and claim type in the tenant.
type duplicateClaimExtractor struct {
	repo ClaimRepository
}

func (e *duplicateClaimExtractor) Name() Signal { return SignalDuplicateClaims }

func (e *duplicateClaimExtractor) Extract(ctx context.Context, c *claim.Claim) (SignalResult, error) {
	stats, err := e.repo.CountDuplicates(ctx, c, duplicateWindow)
	if err != nil {
		return SignalResult{}, fmt.Errorf("counting duplicate claims: %w", err)
	}

	score := math.Min(float64(stats.Count)*0.3, 1.0)

	detail := map[string]interface{}{
		"duplicate_count": stats.Count,
		"average_amount":  stats.AverageAmount,
	}
	if stats.Count > 0 && stats.AverageAmount > 0 {
		detail["amount_variance"] = math.Abs(c.EstimatedValue.ToFloat64()-stats.AverageAmount) / stats.AverageAmount
	}

	return SignalResult{Signal: e.Name(), Score: score, Detail: detail}, nil
}

// unusualAmountExtractor inspects only the claim's own estimated value.
type unusualAmountExtractor struct{}

func (e *unusualAmountExtractor) Name() Signal { return SignalUnusualAmounts }

func (e *unusualAmountExtractor) Extract(_ context.Context, c *claim.Claim) (SignalResult, error) {
	var score float64
	reasons := []string{}

	v := c.EstimatedValue
	if v.IsMultipleOf(roundAmountStep) && v.GreaterThanFloat(roundAmountFloor) {
		score += 0.3
		reasons = append(reasons, "round amount over 10000")
	}
	if v.GreaterThanFloat(largeAmountFloor) {
		score += 0.2
		reasons = append(reasons, "amount over 100000")
	}
	if v.IsAllNines() {
		score += 0.4
		reasons = append(reasons, "repeating nines pattern")
	}

	return SignalResult{
		Signal: e.Name(),
		Score:  math.Min(score, 1.0),
		Detail: map[string]interface{}{
			"estimated_value": v.ToFloat64(),
			"reasons":         reasons,
		},
	}, nil
}

// rapidSubmissionExtractor counts the submitter's other claims in the
// trailing hour.
type rapidSubmissionExtractor struct {
	repo ClaimRepository
}

func (e *rapidSubmissionExtractor) Name() Signal { return SignalRapidSubmission }

func (e *rapidSubmissionExtractor) Extract(ctx context.Context, c *claim.Claim) (SignalResult, error) {
	count, err := e.repo.RecentSubmissionCount(ctx, c, rapidWindow)
	if err != nil {
		return SignalResult{}, fmt.Errorf("counting recent submissions: %w", err)
	}

	return SignalResult{
		Signal: e.Name(),
		Score:  math.Min(float64(count)*0.4, 1.0),
		Detail: map[string]interface{}{
			"recent_count":   count,
			"window_minutes": int(rapidWindow.Minutes()),
		},
	}, nil
}

// documentAnomalyExtractor flags oversized and executable attachments.
type documentAnomalyExtractor struct{}

func (e *documentAnomalyExtractor) Name() Signal { return SignalDocumentAnomalies }

func (e *documentAnomalyExtractor) Extract(_ context.Context, c *claim.Claim) (SignalResult, error) {
	var score float64
	flagged := []map[string]interface{}{}

	for _, doc := range c.Documents {
		if doc.FileSize > largeDocumentBytes {
			score += 0.2
			flagged = append(flagged, map[string]interface{}{
				"filename": doc.Filename,
				"reason":   "oversized",
				"size":     doc.FileSize,
			})
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))
		if executableExtensions[ext] {
			score += 0.5
			flagged = append(flagged, map[string]interface{}{
				"filename": doc.Filename,
				"reason":   "executable extension",
				"ext":      ext,
			})
		}
	}

	return SignalResult{
		Signal: e.Name(),
		Score:  math.Min(score, 1.0),
		Detail: map[string]interface{}{
			"document_count":    len(c.Documents),
			"flagged_documents": flagged,
		},
	}, nil
}

// behavioralPatternExtractor aggregates the submitter's 90-day history.
type behavioralPatternExtractor struct {
	repo ClaimRepository
}

func (e *behavioralPatternExtractor) Name() Signal { return SignalBehavioralPatterns }

func (e *behavioralPatternExtractor) Extract(ctx context.Context, c *claim.Claim) (SignalResult, error) {
	stats, err := e.repo.SubmitterStats(ctx, c, behavioralWindow)
	if err != nil {
		return SignalResult{}, fmt.Errorf("loading submitter history: %w", err)
	}

	var score float64
	rate := stats.RejectionRate()
	if rate > 0.5 {
		score += 0.4
	}
	if stats.TotalCount > 20 {
		score += 0.3
	}

	return SignalResult{
		Signal: e.Name(),
		Score:  math.Min(score, 1.0),
		Detail: map[string]interface{}{
			"total_claims":   stats.TotalCount,
			"average_amount": stats.AverageAmount,
			"rejection_rate": rate,
		},
	}, nil
}

// geographicExtractor is a placeholder until geolocation data is wired in.
// It reports a fixed low baseline.
type geographicExtractor struct {
	baseline float64
}

func (e *geographicExtractor) Name() Signal { return SignalGeographicAnomalies }

func (e *geographicExtractor) Extract(_ context.Context, _ *claim.Claim) (SignalResult, error) {
	return SignalResult{
		Signal: e.Name(),
		Score:  e.baseline,
		Detail: map[string]interface{}{
			"note": "full geographic analysis requires external geolocation service",
		},
	}, nil
}

// timingPatternExtractor inspects the claim's submission timestamp.
type timingPatternExtractor struct{}

func (e *timingPatternExtractor) Name() Signal { return SignalTimingPatterns }

func (e *timingPatternExtractor) Extract(_ context.Context, c *claim.Claim) (SignalResult, error) {
	var score float64
	reasons := []string{}

	hour := c.CreatedAt.Hour()
	if hour < 6 || hour > 22 {
		score += 0.2
		reasons = append(reasons, "submitted outside business hours")
	}
	switch c.CreatedAt.Weekday() {
	case time.Saturday, time.Sunday:
		score += 0.1
		reasons = append(reasons, "submitted on weekend")
	}

	return SignalResult{
		Signal: e.Name(),
		Score:  math.Min(score, 1.0),
		Detail: map[string]interface{}{
			"hour":    hour,
			"weekday": c.CreatedAt.Weekday().String(),
			"reasons": reasons,
		},
	}, nil
}
