package claim

import "fmt"

// RiskLevel is the discrete severity tier derived from a composite fraud
// score. Thresholds are exclusive-lower/inclusive-upper: a score of exactly
// 0.8 is critical, 0.79999 is high.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFromScore maps a composite score to its tier. Boundaries are
// evaluated high to low.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	case score >= 0.2:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// ParseRiskLevel validates a stored risk level string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskMinimal, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), nil
	default:
		return "", fmt.Errorf("unknown risk level: %q", s)
	}
}

func (r RiskLevel) String() string {
	return string(r)
}
