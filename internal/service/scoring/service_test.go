package scoring

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/claimsight/risk-engine/internal/domain/claim"
	domainerrors "github.com/claimsight/risk-engine/internal/domain/errors"
	"github.com/claimsight/risk-engine/internal/domain/values"
)

func newServiceUnderTest(
	claims *mockClaimRepository,
	events *mockEventRepository,
	insights InsightGenerator,
	cache RiskCache,
	opts ...Option,
) Service {
	if insights == nil {
		insights = &stubInsightGenerator{}
	}
	return NewService(claims, events, insights, cache, nil, slog.Default(), opts...)
}

func storedClaim(t *testing.T, amount float64, createdAt time.Time) *claim.Claim {
	t.Helper()
	c, err := claim.NewClaim(uuid.New(), "Jane Roe", "auto",
		values.MustNewMoneyFromFloat(amount, "USD"), uuid.New())
	require.NoError(t, err)
	c.CreatedAt = createdAt
	return c
}

func quietHistory(claims *mockClaimRepository) {
	claims.On("CountDuplicates", mock.Anything, mock.Anything, mock.Anything).
		Return(&DuplicateStats{}, nil)
	claims.On("RecentSubmissionCount", mock.Anything, mock.Anything, mock.Anything).
		Return(0, nil)
	claims.On("SubmitterStats", mock.Anything, mock.Anything, mock.Anything).
		Return(&SubmitterStats{TotalCount: 1}, nil)
}

func TestScoreClaim_AllNinesAmountLandsMinimal(t *testing.T) {
	// estimated value 99999, no duplicates, no rapid submissions, no
	// documents, weekday daytime: only the all-nines pattern (0.4) and the
	// geographic baseline (0.1) contribute
	c := storedClaim(t, 99999, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	quietHistory(claims)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	events.On("LatestConfidence", mock.Anything, c.ID, SignalUnusualAmounts).
		Return(0.0, false, nil)
	events.On("Save", mock.Anything, mock.Anything).Return(nil)

	result, err := newServiceUnderTest(claims, events, nil, nil).ScoreClaim(context.Background(), c.ID)

	require.NoError(t, err)
	// weighted blend: (0.4*0.7 + 0.1*0.7) / 5.1
	assert.InDelta(t, 0.35/5.1, result.Score, 0.001)
	assert.Equal(t, claim.RiskMinimal, result.RiskLevel)
	assert.Len(t, result.Signals, 7)
	assert.Equal(t, []string{"proceed with normal processing"}, result.Recommendations)

	// only the unusual-amounts signal crossed the event threshold
	events.AssertNumberOfCalls(t, "Save", 1)
	claims.AssertExpectations(t)
}

func TestScoreClaim_RapidSubmissionsRaiseScore(t *testing.T) {
	// 4th claim within the hour: 3 prior submissions clamp the rapid
	// signal to 1.0
	c := storedClaim(t, 4500.50, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("CountDuplicates", mock.Anything, mock.Anything, mock.Anything).
		Return(&DuplicateStats{}, nil)
	claims.On("RecentSubmissionCount", mock.Anything, mock.Anything, mock.Anything).
		Return(3, nil)
	claims.On("SubmitterStats", mock.Anything, mock.Anything, mock.Anything).
		Return(&SubmitterStats{TotalCount: 4}, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	events.On("LatestConfidence", mock.Anything, c.ID, SignalRapidSubmission).
		Return(0.0, false, nil)
	events.On("Save", mock.Anything, mock.Anything).Return(nil)

	result, err := newServiceUnderTest(claims, events, nil, nil).ScoreClaim(context.Background(), c.ID)

	require.NoError(t, err)

	var rapid *SignalResult
	for i := range result.Signals {
		if result.Signals[i].Signal == SignalRapidSubmission {
			rapid = &result.Signals[i]
		}
	}
	require.NotNil(t, rapid)
	assert.Equal(t, 1.0, rapid.Score)
	// (1.0*0.6 + 0.1*0.7) / 5.1
	assert.InDelta(t, 0.67/5.1, result.Score, 0.001)
}

func TestScoreClaim_EventsOnlyAboveThreshold(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	events.On("LatestConfidence", mock.Anything, c.ID, mock.Anything).
		Return(0.0, false, nil)
	events.On("Save", mock.Anything, mock.MatchedBy(func(e *FraudEvent) bool {
		return e.Confidence > 0.3
	})).Return(nil)

	svc := newServiceUnderTest(claims, events, nil, nil, WithExtractors([]Extractor{
		&stubExtractor{name: SignalDocumentAnomalies, score: 0.9},
		&stubExtractor{name: SignalUnusualAmounts, score: 0.55},
		&stubExtractor{name: SignalTimingPatterns, score: 0.3}, // at threshold, not above
		&stubExtractor{name: SignalGeographicAnomalies, score: 0.1},
	}))

	_, err := svc.ScoreClaim(context.Background(), c.ID)
	require.NoError(t, err)

	events.AssertNumberOfCalls(t, "Save", 2)

	// severity boundaries
	for _, call := range events.Calls {
		if call.Method != "Save" {
			continue
		}
		e := call.Arguments.Get(1).(*FraudEvent)
		switch e.Signal {
		case SignalDocumentAnomalies:
			assert.Equal(t, "high", e.Severity)
		case SignalUnusualAmounts:
			assert.Equal(t, "medium", e.Severity)
		}
	}
}

func TestScoreClaim_UnchangedConfidenceNotReRecorded(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	events.On("LatestConfidence", mock.Anything, c.ID, SignalDocumentAnomalies).
		Return(0.9, true, nil)

	svc := newServiceUnderTest(claims, events, nil, nil, WithExtractors([]Extractor{
		&stubExtractor{name: SignalDocumentAnomalies, score: 0.9},
	}))

	_, err := svc.ScoreClaim(context.Background(), c.ID)
	require.NoError(t, err)

	events.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestScoreClaim_FailedExtractorExcludedFromDenominator(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	events.On("LatestConfidence", mock.Anything, mock.Anything, mock.Anything).
		Return(0.0, false, nil)
	events.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc := newServiceUnderTest(claims, events, nil, nil, WithExtractors([]Extractor{
		&stubExtractor{name: SignalDocumentAnomalies, score: 0.8},
		&stubExtractor{name: SignalDuplicateClaims, err: errors.New("query timeout")},
	}))

	result, err := svc.ScoreClaim(context.Background(), c.ID)
	require.NoError(t, err)

	// only document_anomalies (weight 0.9) in the denominator
	assert.InDelta(t, 0.8, result.Score, 0.0001)
	assert.Len(t, result.Signals, 1)
	assert.Equal(t, claim.RiskCritical, result.RiskLevel)
}

func TestScoreClaim_PanickingExtractorIsolated(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	svc := newServiceUnderTest(claims, events, nil, nil, WithExtractors([]Extractor{
		&stubExtractor{name: SignalGeographicAnomalies, score: 0.1},
		&stubExtractor{name: SignalDuplicateClaims, panics: true},
	}))

	result, err := svc.ScoreClaim(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, result.Signals, 1)
}

func TestScoreClaim_AllSignalsFailed(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)

	svc := newServiceUnderTest(claims, events, nil, nil, WithExtractors([]Extractor{
		&stubExtractor{name: SignalDuplicateClaims, err: errors.New("db down")},
		&stubExtractor{name: SignalRapidSubmission, err: errors.New("db down")},
	}))

	_, err := svc.ScoreClaim(context.Background(), c.ID)

	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInternal))
	claims.AssertNotCalled(t, "UpdateFraudAssessment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScoreClaim_ClaimNotFound(t *testing.T) {
	claims := new(mockClaimRepository)
	claimID := uuid.New()
	claims.On("GetByID", mock.Anything, claimID).
		Return((*claim.Claim)(nil), domainerrors.ErrClaimNotFound)

	_, err := newServiceUnderTest(claims, new(mockEventRepository), nil, nil).
		ScoreClaim(context.Background(), claimID)

	assert.Error(t, err)
}

func TestScoreClaim_InsightFallbackDoesNotFailRun(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	svc := newServiceUnderTest(claims, events, &stubInsightGenerator{fallback: true}, nil,
		WithExtractors([]Extractor{
			&stubExtractor{name: SignalGeographicAnomalies, score: 0.1},
		}))

	result, err := svc.ScoreClaim(context.Background(), c.ID)

	require.NoError(t, err)
	require.NotNil(t, result.Insights)
	assert.Equal(t, claim.FallbackInsights(), result.Insights)
}

func TestScoreClaim_WritesScoreToCache(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	events := new(mockEventRepository)
	cache := new(mockRiskCache)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)
	claims.On("UpdateFraudAssessment", mock.Anything, c.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	cache.On("Set", mock.Anything, c.ID, mock.Anything, mock.Anything).Return(nil)

	svc := newServiceUnderTest(claims, events, nil, cache, WithExtractors([]Extractor{
		&stubExtractor{name: SignalGeographicAnomalies, score: 0.1},
	}))

	_, err := svc.ScoreClaim(context.Background(), c.ID)
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestGetRiskScore_CacheFirst(t *testing.T) {
	claims := new(mockClaimRepository)
	cache := new(mockRiskCache)
	claimID := uuid.New()
	cache.On("Get", mock.Anything, claimID).Return(0.45, claim.RiskMedium, true, nil)

	score, level, err := newServiceUnderTest(claims, new(mockEventRepository), nil, cache).
		GetRiskScore(context.Background(), claimID)

	require.NoError(t, err)
	assert.Equal(t, 0.45, score)
	assert.Equal(t, claim.RiskMedium, level)
	claims.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetRiskScore_FallsBackToStore(t *testing.T) {
	c := storedClaim(t, 100, time.Now())
	score := 0.62
	level := claim.RiskHigh
	c.FraudScore = &score
	c.RiskLevel = &level

	claims := new(mockClaimRepository)
	cache := new(mockRiskCache)
	cache.On("Get", mock.Anything, c.ID).Return(0.0, claim.RiskLevel(""), false, nil)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)

	got, gotLevel, err := newServiceUnderTest(claims, new(mockEventRepository), nil, cache).
		GetRiskScore(context.Background(), c.ID)

	require.NoError(t, err)
	assert.Equal(t, 0.62, got)
	assert.Equal(t, claim.RiskHigh, gotLevel)
}

func TestGetRiskScore_UnscoredClaim(t *testing.T) {
	c := storedClaim(t, 100, time.Now())

	claims := new(mockClaimRepository)
	claims.On("GetByID", mock.Anything, c.ID).Return(c, nil)

	_, _, err := newServiceUnderTest(claims, new(mockEventRepository), nil, nil).
		GetRiskScore(context.Background(), c.ID)

	assert.Error(t, err)
}

func TestGetFraudStatistics(t *testing.T) {
	tenantID := uuid.New()
	claims := new(mockClaimRepository)
	claims.On("TenantFraudStats", mock.Anything, tenantID, 30*24*time.Hour).
		Return(&TenantFraudStats{TenantID: tenantID, TotalScored: 12, AverageScore: 0.22}, nil)

	stats, err := newServiceUnderTest(claims, new(mockEventRepository), nil, nil).
		GetFraudStatistics(context.Background(), tenantID, 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 12, stats.TotalScored)
}

func TestGetFraudStatistics_NilTenant(t *testing.T) {
	_, err := newServiceUnderTest(new(mockClaimRepository), new(mockEventRepository), nil, nil).
		GetFraudStatistics(context.Background(), uuid.Nil, time.Hour)

	assert.Error(t, err)
}

func TestRecommendationLadder(t *testing.T) {
	tests := []struct {
		score float64
		first string
		count int
	}{
		{0.85, "immediate manual review", 3},
		{0.8, "immediate manual review", 3},
		{0.65, "enhanced review", 3},
		{0.45, "standard review", 2},
		{0.1, "proceed with normal processing", 1},
	}

	for _, tt := range tests {
		recs := recommendationsFor(tt.score)
		require.Len(t, recs, tt.count, "score %f", tt.score)
		assert.Equal(t, tt.first, recs[0])
	}
}

// Stubs and mocks

type stubExtractor struct {
	name   Signal
	score  float64
	err    error
	panics bool
}

func (s *stubExtractor) Name() Signal { return s.name }

func (s *stubExtractor) Extract(_ context.Context, _ *claim.Claim) (SignalResult, error) {
	if s.panics {
		panic("extractor blew up")
	}
	if s.err != nil {
		return SignalResult{}, s.err
	}
	return SignalResult{Signal: s.name, Score: s.score, Detail: map[string]interface{}{}}, nil
}

type stubInsightGenerator struct {
	fallback bool
}

func (s *stubInsightGenerator) Generate(_ context.Context, _ *claim.Claim, _ []SignalResult) *claim.Insights {
	if s.fallback {
		return claim.FallbackInsights()
	}
	return &claim.Insights{
		RiskFactors:     []string{"test factor"},
		Recommendations: []string{"test recommendation"},
		ConfidenceLevel: "medium",
		Summary:         "test summary",
	}
}

type mockClaimRepository struct {
	mock.Mock
}

func (m *mockClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*claim.Claim, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*claim.Claim), args.Error(1)
}

func (m *mockClaimRepository) CountDuplicates(ctx context.Context, c *claim.Claim, window time.Duration) (*DuplicateStats, error) {
	args := m.Called(ctx, c, window)
	return args.Get(0).(*DuplicateStats), args.Error(1)
}

func (m *mockClaimRepository) RecentSubmissionCount(ctx context.Context, c *claim.Claim, window time.Duration) (int, error) {
	args := m.Called(ctx, c, window)
	return args.Int(0), args.Error(1)
}

func (m *mockClaimRepository) SubmitterStats(ctx context.Context, c *claim.Claim, window time.Duration) (*SubmitterStats, error) {
	args := m.Called(ctx, c, window)
	return args.Get(0).(*SubmitterStats), args.Error(1)
}

func (m *mockClaimRepository) UpdateFraudAssessment(ctx context.Context, id uuid.UUID, score float64, level claim.RiskLevel, insights *claim.Insights) error {
	args := m.Called(ctx, id, score, level, insights)
	return args.Error(0)
}

func (m *mockClaimRepository) TenantFraudStats(ctx context.Context, tenantID uuid.UUID, window time.Duration) (*TenantFraudStats, error) {
	args := m.Called(ctx, tenantID, window)
	return args.Get(0).(*TenantFraudStats), args.Error(1)
}

type mockEventRepository struct {
	mock.Mock
}

func (m *mockEventRepository) Save(ctx context.Context, event *FraudEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockEventRepository) LatestConfidence(ctx context.Context, claimID uuid.UUID, signal Signal) (float64, bool, error) {
	args := m.Called(ctx, claimID, signal)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

type mockRiskCache struct {
	mock.Mock
}

func (m *mockRiskCache) Get(ctx context.Context, claimID uuid.UUID) (float64, claim.RiskLevel, bool, error) {
	args := m.Called(ctx, claimID)
	return args.Get(0).(float64), args.Get(1).(claim.RiskLevel), args.Bool(2), args.Error(3)
}

func (m *mockRiskCache) Set(ctx context.Context, claimID uuid.UUID, score float64, level claim.RiskLevel) error {
	args := m.Called(ctx, claimID, score, level)
	return args.Error(0)
}
