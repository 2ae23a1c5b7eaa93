package anomaly

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/claimsight/risk-engine/internal/domain/vendor"
	"github.com/claimsight/risk-engine/internal/infrastructure/notify"
)

func monthlySeries(name string, totals ...float64) []vendor.SpendPoint {
	points := make([]vendor.SpendPoint, len(totals))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, total := range totals {
		points[i] = vendor.SpendPoint{
			Vendor: name,
			Month:  base.AddDate(0, i, 0),
			Total:  total,
		}
	}
	return points
}

func newTestScanner(spend *mockSpendRepository, anomalies *mockAnomalyRepository, pub notify.Publisher) *Scanner {
	return NewScanner(spend, anomalies, pub, slog.Default(), 2)
}

func TestScan_FlatHistorySkipped(t *testing.T) {
	// large absolute jump, but all prior months equal: stddev=0 means no
	// meaningful deviation measure
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)
	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return(monthlySeries("Acme", 100, 100, 100, 100, 500), nil)

	report, err := newTestScanner(spend, anomalies, nil).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	assert.Empty(t, report.Records)
	assert.Equal(t, SkipFlatHistory, report.Skipped["Acme"])
	anomalies.AssertNotCalled(t, "SaveAnomaly", mock.Anything, mock.Anything)
}

func TestScan_RedTierNotifies(t *testing.T) {
	// history mean=100, stddev=sqrt(200)~14.1, diff=160 > 2 sigma
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)
	pub := notify.NewChannelPublisher(4)
	defer pub.Close()

	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return(monthlySeries("Acme", 80, 120, 100, 100, 260), nil)
	anomalies.On("SaveAnomaly", mock.Anything, mock.Anything).Return(nil)

	report, err := newTestScanner(spend, anomalies, pub).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	require.Len(t, report.Records, 1)

	rec := report.Records[0]
	assert.Equal(t, vendor.TierRed, rec.Tier)
	assert.InDelta(t, 100.0, rec.Mean, 0.001)
	assert.InDelta(t, 160.0, rec.Deviation, 0.001)
	assert.True(t, rec.Notified)

	n := <-pub.Notifications()
	assert.Equal(t, "Acme", n.Vendor)
	assert.Equal(t, vendor.TierRed, n.Tier)

	anomalies.AssertExpectations(t)
}

func TestScan_InsufficientDataSkipped(t *testing.T) {
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)
	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return(monthlySeries("Acme", 100), nil)

	report, err := newTestScanner(spend, anomalies, nil).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	assert.Empty(t, report.Records)
	assert.Equal(t, SkipInsufficientData, report.Skipped["Acme"])
}

func TestScan_SpendDropIgnored(t *testing.T) {
	// only increases are flagged
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)
	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return(monthlySeries("Acme", 80, 120, 100, 100, 20), nil)

	report, err := newTestScanner(spend, anomalies, nil).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	assert.Empty(t, report.Records)
	assert.Equal(t, SkipNoDeviation, report.Skipped["Acme"])
}

func TestScan_GreenTierStillNotifiesAboveMaterialityBound(t *testing.T) {
	// history mean=100, stddev=sqrt(50)~7.07; diff=5 sits between 0.5 and
	// 1 sigma: green tier, but still material
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)
	pub := notify.NewChannelPublisher(4)
	defer pub.Close()

	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return(monthlySeries("Acme", 100, 110, 90, 100, 105), nil)
	anomalies.On("SaveAnomaly", mock.Anything, mock.Anything).Return(nil)

	report, err := newTestScanner(spend, anomalies, pub).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, vendor.TierGreen, report.Records[0].Tier)
	assert.True(t, report.Records[0].Notified)

	n := <-pub.Notifications()
	assert.Equal(t, vendor.TierGreen, n.Tier)
}

func TestScan_SubMaterialDeviationPersistedSilently(t *testing.T) {
	// history mean=100, stddev~7.07; diff=2 is below 0.5 sigma: record is
	// persisted but no notification fires
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)
	pub := notify.NewChannelPublisher(4)
	defer pub.Close()

	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return(monthlySeries("Acme", 100, 110, 90, 100, 102), nil)
	anomalies.On("SaveAnomaly", mock.Anything, mock.Anything).Return(nil)

	report, err := newTestScanner(spend, anomalies, pub).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.False(t, report.Records[0].Notified)
	assert.Empty(t, pub.Notifications())
}

func TestScan_FailedVendorSkippedWithoutAbortingBatch(t *testing.T) {
	spend := new(mockSpendRepository)
	anomalies := new(mockAnomalyRepository)

	points := append(monthlySeries("Acme", 80, 120, 100, 100, 260),
		monthlySeries("Globex", 50, 60, 40, 50, 90)...)
	spend.On("MonthlySpend", mock.Anything, mock.Anything).Return(points, nil)

	anomalies.On("SaveAnomaly", mock.Anything, mock.MatchedBy(func(rec *vendor.AnomalyRecord) bool {
		return rec.Vendor == "Acme"
	})).Return(errors.New("connection reset"))
	anomalies.On("SaveAnomaly", mock.Anything, mock.MatchedBy(func(rec *vendor.AnomalyRecord) bool {
		return rec.Vendor == "Globex"
	})).Return(nil)

	report, err := newTestScanner(spend, anomalies, nil).ScanVendorAnomalies(context.Background(), 6)

	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "Globex", report.Records[0].Vendor)
	assert.Equal(t, SkipFailed, report.Skipped["Acme"])
}

func TestScan_QueryErrorFailsBatch(t *testing.T) {
	spend := new(mockSpendRepository)
	spend.On("MonthlySpend", mock.Anything, mock.Anything).
		Return([]vendor.SpendPoint(nil), errors.New("db down"))

	_, err := newTestScanner(spend, new(mockAnomalyRepository), nil).ScanVendorAnomalies(context.Background(), 6)

	assert.Error(t, err)
}

// Mocks

type mockSpendRepository struct {
	mock.Mock
}

func (m *mockSpendRepository) MonthlySpend(ctx context.Context, since time.Time) ([]vendor.SpendPoint, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]vendor.SpendPoint), args.Error(1)
}

type mockAnomalyRepository struct {
	mock.Mock
}

func (m *mockAnomalyRepository) SaveAnomaly(ctx context.Context, rec *vendor.AnomalyRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
