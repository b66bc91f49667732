// Package scoring holds the fixed business rules that turn a metrics snapshot
// into Core Web Vitals scores, traffic-light bands and a project health status.
//
// Every function is pure and safe for concurrent use.
package scoring

import "github.com/p-blackswan/pulse/internal/models"

// Vital thresholds (inclusive upper bounds).
const (
	LCPGood = 2.5 // seconds
	LCPOK   = 4.0
	CLSGood = 0.10
	CLSOK   = 0.25
	INPGood = 200.0 // milliseconds
	INPOK   = 500.0
)

// Per-vital scores. The composite is discretized on these breakpoints.
const (
	vitalScoreGood    = 100.0
	vitalScoreWarning = 75.0
	vitalScorePoor    = 25.0
)

// Health weights. They sum to 1.0.
const (
	weightCWV           = 0.3
	weightAccessibility = 0.2
	weightBestPractices = 0.2
	weightSEO           = 0.1
	weightThroughput    = 0.1
	weightQuality       = 0.1
)

// Health thresholds on the 0..1 health score.
const (
	HealthyThreshold = 0.8
	AtRiskThreshold  = 0.6
)

// ClassifyVital bands value against inclusive good/ok thresholds.
func ClassifyVital(value, good, ok float64) models.Band {
	switch {
	case value <= good:
		return models.BandGood
	case value <= ok:
		return models.BandWarning
	default:
		return models.BandPoor
	}
}

// LCPBand classifies Largest Contentful Paint in seconds.
func LCPBand(lcp float64) models.Band { return ClassifyVital(lcp, LCPGood, LCPOK) }

// CLSBand classifies Cumulative Layout Shift.
func CLSBand(cls float64) models.Band { return ClassifyVital(cls, CLSGood, CLSOK) }

// INPBand classifies Interaction to Next Paint in milliseconds.
func INPBand(inp float64) models.Band { return ClassifyVital(inp, INPGood, INPOK) }

func vitalScore(b models.Band) float64 {
	switch b {
	case models.BandGood:
		return vitalScoreGood
	case models.BandWarning:
		return vitalScoreWarning
	default:
		return vitalScorePoor
	}
}

// CWVScore returns the 0..100 composite: the mean of the three per-vital scores.
func CWVScore(v models.CoreWebVitals) float64 {
	return (vitalScore(LCPBand(v.LCP)) + vitalScore(CLSBand(v.CLS)) + vitalScore(INPBand(v.INP))) / 3
}

// ScoreBand classifies a 0..100 score (good >= 90, warning >= 75).
func ScoreBand(score float64) models.Band {
	switch {
	case score >= 90:
		return models.BandGood
	case score >= 75:
		return models.BandWarning
	default:
		return models.BandPoor
	}
}

// RatioBand classifies a 0..1 ratio (good >= 0.90, warning >= 0.70).
func RatioBand(ratio float64) models.Band {
	switch {
	case ratio >= 0.90:
		return models.BandGood
	case ratio >= 0.70:
		return models.BandWarning
	default:
		return models.BandPoor
	}
}

// HealthScore is the weighted 0..1 health of a snapshot.
func HealthScore(m models.ProjectMetrics) float64 {
	perf := weightCWV*(CWVScore(m.Perf.CoreWebVitals)/100) +
		weightAccessibility*m.Perf.Accessibility +
		weightBestPractices*m.Perf.BestPractices +
		weightSEO*m.Perf.SEO
	flow := weightThroughput*m.Flow.ThroughputRatio +
		weightQuality*m.Flow.QualitySpecial
	return perf + flow
}

// ClassifyHealth maps a health score to a status.
func ClassifyHealth(score float64) models.HealthStatus {
	switch {
	case score >= HealthyThreshold:
		return models.HealthHealthy
	case score >= AtRiskThreshold:
		return models.HealthAtRisk
	default:
		return models.HealthCritical
	}
}

// HealthStatus classifies a snapshot. Missing data is the worst case.
func HealthStatus(m *models.ProjectMetrics) models.HealthStatus {
	if m == nil {
		return models.HealthCritical
	}
	return ClassifyHealth(HealthScore(*m))
}

// VitalBands is the per-vital classification of a snapshot.
type VitalBands struct {
	LCP models.Band `json:"lcp"`
	CLS models.Band `json:"cls"`
	INP models.Band `json:"inp"`
}

// Bands classifies each vital.
func Bands(v models.CoreWebVitals) VitalBands {
	return VitalBands{LCP: LCPBand(v.LCP), CLS: CLSBand(v.CLS), INP: INPBand(v.INP)}
}
