package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions for the risk engine

var (
	scoringRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "scoring",
			Name:      "runs_total",
			Help:      "Total number of claim scoring runs",
		},
		[]string{"result"},
	)

	scoringRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "risk",
			Subsystem: "scoring",
			Name:      "run_duration_seconds",
			Help:      "Claim scoring run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"result"},
	)

	signalFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "scoring",
			Name:      "signal_failures_total",
			Help:      "Total number of failed signal extractions",
		},
		[]string{"signal"},
	)

	fraudEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "scoring",
			Name:      "fraud_events_total",
			Help:      "Total number of fraud events recorded",
		},
		[]string{"severity"},
	)

	insightFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "insight",
			Name:      "fallbacks_total",
			Help:      "Total number of insight generations that fell back to the deterministic payload",
		},
	)

	anomalyScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "anomaly",
			Name:      "scans_total",
			Help:      "Total number of vendor anomaly scan passes",
		},
		[]string{"result"},
	)

	anomalyScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "risk",
			Subsystem: "anomaly",
			Name:      "scan_duration_seconds",
			Help:      "Vendor anomaly scan duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	anomalyNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "risk",
			Subsystem: "anomaly",
			Name:      "notifications_total",
			Help:      "Total number of vendor anomaly notifications emitted",
		},
		[]string{"tier"},
	)
)

// ScoringRunCompleted records the outcome and latency of one scoring run
func ScoringRunCompleted(result string, d time.Duration) {
	scoringRunsTotal.WithLabelValues(result).Inc()
	scoringRunDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SignalFailed records one failed signal extraction
func SignalFailed(signal string) {
	signalFailuresTotal.WithLabelValues(signal).Inc()
}

// FraudEventRecorded records one persisted fraud event
func FraudEventRecorded(severity string) {
	fraudEventsTotal.WithLabelValues(severity).Inc()
}

// InsightFallback records one insight generation that used the fallback
func InsightFallback() {
	insightFallbacksTotal.Inc()
}

// AnomalyScanCompleted records the outcome and latency of one scan pass
func AnomalyScanCompleted(result string, d time.Duration) {
	anomalyScansTotal.WithLabelValues(result).Inc()
	anomalyScanDuration.Observe(d.Seconds())
}

// AnomalyNotificationSent records one emitted anomaly notification
func AnomalyNotificationSent(tier string) {
	anomalyNotificationsTotal.WithLabelValues(tier).Inc()
}
