package scoring

// Signal identifies one independent fraud check.
type Signal string

const (
	SignalDuplicateClaims     Signal = "duplicate_claims"
	SignalUnusualAmounts      Signal = "unusual_amounts"
	SignalRapidSubmission     Signal = "rapid_submission"
	SignalDocumentAnomalies   Signal = "document_anomalies"
	SignalBehavioralPatterns  Signal = "behavioral_patterns"
	SignalGeographicAnomalies Signal = "geographic_anomalies"
	SignalTimingPatterns      Signal = "timing_patterns"
)

const (
	// eventThreshold is the minimum signal score that produces a fraud event
	eventThreshold = 0.3

	// severity boundaries for recorded events
	severityHighThreshold   = 0.7
	severityMediumThreshold = 0.5
)

// WeightRegistry holds the per-signal aggregation weights. It is immutable
// after construction; build variants with NewWeightRegistry for per-tenant
// configurations.
type WeightRegistry struct {
	weights map[Signal]float64
}

// NewWeightRegistry copies the given weights into an immutable registry.
func NewWeightRegistry(weights map[Signal]float64) *WeightRegistry {
	w := make(map[Signal]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &WeightRegistry{weights: w}
}

// DefaultWeights returns the standard signal weight registry.
func DefaultWeights() *WeightRegistry {
	return NewWeightRegistry(map[Signal]float64{
		SignalDuplicateClaims:     0.8,
		SignalUnusualAmounts:      0.7,
		SignalRapidSubmission:     0.6,
		SignalDocumentAnomalies:   0.9,
		SignalBehavioralPatterns:  0.8,
		SignalGeographicAnomalies: 0.7,
		SignalTimingPatterns:      0.6,
	})
}

// Weight returns the weight for a signal, or 0 for unknown signals.
func (r *WeightRegistry) Weight(s Signal) float64 {
	return r.weights[s]
}
