// Package anomaly implements the vendor spend anomaly scanner.
package anomaly

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/claimsight/risk-engine/internal/domain/vendor"
	"github.com/claimsight/risk-engine/internal/infrastructure/notify"
	"github.com/claimsight/risk-engine/internal/metrics"
)

// SpendRepository reads monthly vendor spend series
type SpendRepository interface {
	// MonthlySpend returns per-vendor monthly totals since the given time,
	// ordered by vendor then month ascending
	MonthlySpend(ctx context.Context, since time.Time) ([]vendor.SpendPoint, error)
}

// AnomalyRepository persists computed anomaly records
type AnomalyRepository interface {
	SaveAnomaly(ctx context.Context, rec *vendor.AnomalyRecord) error
}

// SkipReason explains why a vendor pass produced no anomaly record
type SkipReason string

const (
	SkipInsufficientData SkipReason = "insufficient_data"
	SkipFlatHistory      SkipReason = "flat_history"
	SkipNoDeviation      SkipReason = "no_deviation"
	SkipFailed           SkipReason = "failed"
)

// ScanReport is the outcome of one full scan pass
type ScanReport struct {
	Records []*vendor.AnomalyRecord
	Skipped map[string]SkipReason
}

// Scanner compares each vendor's latest monthly spend against its own
// trailing history and notifies on material increases.
type Scanner struct {
	spend       SpendRepository
	anomalies   AnomalyRepository
	publisher   notify.Publisher
	logger      *slog.Logger
	concurrency int
}

// NewScanner creates a scanner. concurrency bounds the vendor worker pool.
func NewScanner(spend SpendRepository, anomalies AnomalyRepository, publisher notify.Publisher, logger *slog.Logger, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Scanner{
		spend:       spend,
		anomalies:   anomalies,
		publisher:   publisher,
		logger:      logger,
		concurrency: concurrency,
	}
}

// ScanVendorAnomalies runs one scan pass over all vendors with spend in the
// trailing windowMonths. A failed vendor is logged and skipped, never
// aborting the batch.
func (s *Scanner) ScanVendorAnomalies(ctx context.Context, windowMonths int) (*ScanReport, error) {
	started := time.Now()

	if windowMonths <= 0 {
		windowMonths = 3
	}
	since := time.Now().AddDate(0, -windowMonths, 0)

	points, err := s.spend.MonthlySpend(ctx, since)
	if err != nil {
		metrics.AnomalyScanCompleted("error", time.Since(started))
		return nil, err
	}

	series := groupByVendor(points)

	report := &ScanReport{Skipped: make(map[string]SkipReason)}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)

	for name, vendorSeries := range series {
		wg.Add(1)
		sem <- struct{}{}
		go func(name string, vendorSeries []vendor.SpendPoint) {
			defer wg.Done()
			defer func() { <-sem }()

			rec, skip := s.scanVendor(ctx, name, vendorSeries)

			mu.Lock()
			defer mu.Unlock()
			if rec != nil {
				report.Records = append(report.Records, rec)
			} else {
				report.Skipped[name] = skip
			}
		}(name, vendorSeries)
	}
	wg.Wait()

	metrics.AnomalyScanCompleted("success", time.Since(started))
	s.logger.InfoContext(ctx, "vendor anomaly scan completed",
		slog.Int("vendors", len(series)),
		slog.Int("anomalies", len(report.Records)),
		slog.Int("skipped", len(report.Skipped)))

	return report, nil
}

// scanVendor runs one vendor pass. Returns either a persisted record or a
// skip reason.
func (s *Scanner) scanVendor(ctx context.Context, name string, series []vendor.SpendPoint) (*vendor.AnomalyRecord, SkipReason) {
	if len(series) < 2 {
		return nil, SkipInsufficientData
	}

	latestPoint := series[len(series)-1]
	history := series[:len(series)-1]

	mean, stddev := populationStats(history)
	if stddev == 0 {
		return nil, SkipFlatHistory
	}

	diff := latestPoint.Total - mean
	if diff <= 0 {
		return nil, SkipNoDeviation
	}

	rec, err := vendor.NewAnomalyRecord(name, latestPoint.Month, latestPoint.Total, mean, stddev)
	if err != nil {
		s.logger.ErrorContext(ctx, "vendor anomaly computation failed",
			slog.String("vendor", name),
			slog.String("error", err.Error()))
		return nil, SkipFailed
	}

	if rec.Material() && s.publisher != nil {
		n := notify.NewAnomalyNotification(rec)
		if err := s.publisher.Publish(ctx, n); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish anomaly notification",
				slog.String("vendor", name),
				slog.String("error", err.Error()))
		} else {
			rec.Notified = true
			metrics.AnomalyNotificationSent(string(rec.Tier))
		}
	}

	if err := s.anomalies.SaveAnomaly(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist anomaly record",
			slog.String("vendor", name),
			slog.String("error", err.Error()))
		return nil, SkipFailed
	}

	return rec, ""
}

// groupByVendor splits the ordered point list into per-vendor series,
// preserving chronological order within each vendor.
func groupByVendor(points []vendor.SpendPoint) map[string][]vendor.SpendPoint {
	series := make(map[string][]vendor.SpendPoint)
	for _, p := range points {
		series[p.Vendor] = append(series[p.Vendor], p)
	}
	return series
}

// populationStats computes the population mean and standard deviation
func populationStats(points []vendor.SpendPoint) (mean, stddev float64) {
	if len(points) == 0 {
		return 0, 0
	}

	var sum float64
	for _, p := range points {
		sum += p.Total
	}
	mean = sum / float64(len(points))

	var sumSquares float64
	for _, p := range points {
		d := p.Total - mean
		sumSquares += d * d
	}
	return mean, math.Sqrt(sumSquares / float64(len(points)))
}
