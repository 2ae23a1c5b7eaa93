package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claimsight/risk-engine/internal/domain/claim"
	"github.com/claimsight/risk-engine/internal/domain/errors"
	"github.com/claimsight/risk-engine/internal/metrics"
)

// service implements the Service interface
type service struct {
	claims     ClaimRepository
	events     EventRepository
	insights   InsightGenerator
	cache      RiskCache
	weights    *WeightRegistry
	extractors []Extractor
	logger     *slog.Logger

	runTimeout     time.Duration
	insightTimeout time.Duration
}

// Option customizes service construction
type Option func(*service)

// WithRunTimeout bounds a full scoring run
func WithRunTimeout(d time.Duration) Option {
	return func(s *service) { s.runTimeout = d }
}

// WithInsightTimeout bounds the explanation call
func WithInsightTimeout(d time.Duration) Option {
	return func(s *service) { s.insightTimeout = d }
}

// WithExtractors replaces the default extractor set. Used to swap in a real
// geographic analyzer or to isolate extractors in tests.
func WithExtractors(extractors []Extractor) Option {
	return func(s *service) { s.extractors = extractors }
}

// NewService creates a scoring service with the default extractor set.
// weights may be nil to use the standard registry.
func NewService(
	claims ClaimRepository,
	events EventRepository,
	insights InsightGenerator,
	cache RiskCache,
	weights *WeightRegistry,
	logger *slog.Logger,
	opts ...Option,
) Service {
	if weights == nil {
		weights = DefaultWeights()
	}

	s := &service{
		claims:   claims,
		events:   events,
		insights: insights,
		cache:    cache,
		weights:  weights,
		logger:   logger,
		extractors: []Extractor{
			&duplicateClaimExtractor{repo: claims},
			&unusualAmountExtractor{},
			&rapidSubmissionExtractor{repo: claims},
			&documentAnomalyExtractor{},
			&behavioralPatternExtractor{repo: claims},
			&geographicExtractor{baseline: 0.1},
			&timingPatternExtractor{},
		},
		runTimeout:     30 * time.Second,
		insightTimeout: 8 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ScoreClaim runs all extractors concurrently, aggregates the weighted
// composite score, records material signals, generates insights and writes
// the assessment back onto the claim.
func (s *service) ScoreClaim(ctx context.Context, claimID uuid.UUID) (*ScoreResult, error) {
	started := time.Now()
	runID := uuid.New()

	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		metrics.ScoringRunCompleted("error", time.Since(started))
		return nil, errors.Wrap(err, "loading claim for scoring")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	results := s.runExtractors(runCtx, c)
	if len(results) == 0 {
		metrics.ScoringRunCompleted("all_signals_failed", time.Since(started))
		return nil, errors.NewScoringFailedError(
			fmt.Sprintf("no fraud signals could be computed for claim %s", claimID))
	}

	score := s.aggregate(results)
	level := claim.RiskLevelFromScore(score)

	// Event recording and insight generation are independent outputs of the
	// same signal set, so they run concurrently.
	var wg sync.WaitGroup
	var insights *claim.Insights

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.recordEvents(ctx, c, runID, results)
	}()
	go func() {
		defer wg.Done()
		insightCtx, insightCancel := context.WithTimeout(ctx, s.insightTimeout)
		defer insightCancel()
		insights = s.insights.Generate(insightCtx, c, results)
	}()
	wg.Wait()

	if insights == nil {
		insights = claim.FallbackInsights()
	}

	if err := s.claims.UpdateFraudAssessment(ctx, claimID, score, level, insights); err != nil {
		metrics.ScoringRunCompleted("error", time.Since(started))
		return nil, errors.Wrap(err, "persisting fraud assessment")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, claimID, score, level); err != nil {
			s.logger.WarnContext(ctx, "failed to cache risk score",
				slog.String("claim_id", claimID.String()),
				slog.String("error", err.Error()))
		}
	}

	metrics.ScoringRunCompleted("success", time.Since(started))

	return &ScoreResult{
		ClaimID:         claimID,
		RunID:           runID,
		Score:           score,
		RiskLevel:       level,
		Signals:         results,
		Insights:        insights,
		Recommendations: recommendationsFor(score),
		ScoredAt:        started,
	}, nil
}

// runExtractors fans out one goroutine per extractor and joins on all of
// them. A failed or panicking extractor is logged and excluded; it never
// aborts its siblings.
func (s *service) runExtractors(ctx context.Context, c *claim.Claim) []SignalResult {
	type outcome struct {
		result SignalResult
		err    error
	}

	outcomes := make([]outcome, len(s.extractors))

	var wg sync.WaitGroup
	for i, ex := range s.extractors {
		wg.Add(1)
		go func(i int, ex Extractor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].err = fmt.Errorf("extractor panicked: %v", r)
				}
			}()
			outcomes[i].result, outcomes[i].err = ex.Extract(ctx, c)
		}(i, ex)
	}
	wg.Wait()

	results := make([]SignalResult, 0, len(s.extractors))
	for i, out := range outcomes {
		if out.err != nil {
			metrics.SignalFailed(string(s.extractors[i].Name()))
			s.logger.WarnContext(ctx, "signal extraction failed",
				slog.String("signal", string(s.extractors[i].Name())),
				slog.String("claim_id", c.ID.String()),
				slog.String("error", out.err.Error()))
			continue
		}
		r := out.result
		r.Weight = s.weights.Weight(r.Signal)
		results = append(results, r)
	}

	return results
}

// aggregate computes the weighted average over the signals that were
// actually computed
func (s *service) aggregate(results []SignalResult) float64 {
	var weightedSum, totalWeight float64
	for _, r := range results {
		weightedSum += r.Score * r.Weight
		totalWeight += r.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return math.Min(weightedSum/totalWeight, 1.0)
}

// recordEvents persists one fraud event per material signal. Re-scoring the
// same claim skips signals whose confidence has not materially changed since
// the last recorded event.
func (s *service) recordEvents(ctx context.Context, c *claim.Claim, runID uuid.UUID, results []SignalResult) {
	for _, r := range results {
		if r.Score <= eventThreshold {
			continue
		}

		prev, ok, err := s.events.LatestConfidence(ctx, c.ID, r.Signal)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to check prior fraud event",
				slog.String("signal", string(r.Signal)),
				slog.String("claim_id", c.ID.String()),
				slog.String("error", err.Error()))
		} else if ok && roundConfidence(prev) == roundConfidence(r.Score) {
			continue
		}

		severity := severityFor(r.Score)
		event := &FraudEvent{
			ID:          uuid.New(),
			ClaimID:     c.ID,
			TenantID:    c.TenantID,
			RunID:       runID,
			Signal:      r.Signal,
			Severity:    severity,
			Description: fmt.Sprintf("signal %s scored %.2f", r.Signal, r.Score),
			Confidence:  r.Score,
			Detail:      r.Detail,
			CreatedAt:   time.Now(),
		}

		if err := s.events.Save(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist fraud event",
				slog.String("signal", string(r.Signal)),
				slog.String("claim_id", c.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		metrics.FraudEventRecorded(severity)
	}
}

// GetRiskScore returns the current score for a claim, cache-first.
func (s *service) GetRiskScore(ctx context.Context, claimID uuid.UUID) (float64, claim.RiskLevel, error) {
	if s.cache != nil {
		score, level, found, err := s.cache.Get(ctx, claimID)
		if err != nil {
			s.logger.WarnContext(ctx, "risk cache lookup failed",
				slog.String("claim_id", claimID.String()),
				slog.String("error", err.Error()))
		} else if found {
			return score, level, nil
		}
	}

	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return 0, "", errors.Wrap(err, "loading claim")
	}
	if c.FraudScore == nil || c.RiskLevel == nil {
		return 0, "", errors.NewUnavailableError(
			fmt.Sprintf("claim %s has not been scored", claimID))
	}
	return *c.FraudScore, *c.RiskLevel, nil
}

// GetFraudStatistics returns per-tenant scoring aggregates.
func (s *service) GetFraudStatistics(ctx context.Context, tenantID uuid.UUID, window time.Duration) (*TenantFraudStats, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_TENANT", "tenant ID cannot be nil")
	}
	stats, err := s.claims.TenantFraudStats(ctx, tenantID, window)
	if err != nil {
		return nil, errors.Wrap(err, "loading tenant fraud statistics")
	}
	return stats, nil
}

// recommendationsFor maps a composite score to the ordered action list.
func recommendationsFor(score float64) []string {
	switch {
	case score >= 0.8:
		return []string{
			"immediate manual review",
			"consider temporary account suspension",
			"notify fraud investigation team",
		}
	case score >= 0.6:
		return []string{
			"enhanced review",
			"request additional documentation",
			"monitor for repeat patterns",
		}
	case score >= 0.4:
		return []string{
			"standard review",
			"verify documentation authenticity",
		}
	default:
		return []string{"proceed with normal processing"}
	}
}

func severityFor(score float64) string {
	switch {
	case score > severityHighThreshold:
		return "high"
	case score > severityMediumThreshold:
		return "medium"
	default:
		return "low"
	}
}

// roundConfidence rounds to 4 decimals for material-change comparison
func roundConfidence(v float64) float64 {
	return math.Round(v*10000) / 10000
}
