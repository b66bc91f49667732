package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/pulse/internal/models"
)

func snapshot(v models.CoreWebVitals, a11y, bp, seo, throughput, quality float64) models.ProjectMetrics {
	return models.ProjectMetrics{
		ProjectID: "p1",
		Month:     "2025-03",
		Perf:      models.PerfMetrics{CoreWebVitals: v, Accessibility: a11y, BestPractices: bp, SEO: seo},
		Flow:      models.FlowMetrics{ThroughputRatio: throughput, QualitySpecial: quality},
	}
}

func TestClassifyVital_InclusiveThresholds(t *testing.T) {
	tests := []struct {
		name  string
		band  models.Band
		value float64
		fn    func(float64) models.Band
	}{
		{"lcp at good", models.BandGood, 2.5, LCPBand},
		{"lcp just over good", models.BandWarning, 2.51, LCPBand},
		{"lcp at ok", models.BandWarning, 4.0, LCPBand},
		{"lcp poor", models.BandPoor, 4.01, LCPBand},
		{"cls at good", models.BandGood, 0.1, CLSBand},
		{"cls at ok", models.BandWarning, 0.25, CLSBand},
		{"cls poor", models.BandPoor, 0.3, CLSBand},
		{"inp at good", models.BandGood, 200, INPBand},
		{"inp at ok", models.BandWarning, 500, INPBand},
		{"inp poor", models.BandPoor, 501, INPBand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.band, tt.fn(tt.value))
		})
	}
}

func TestCWVScore(t *testing.T) {
	assert.Equal(t, 100.0, CWVScore(models.CoreWebVitals{LCP: 2.5, CLS: 0.1, INP: 200}))
	assert.Equal(t, 75.0, CWVScore(models.CoreWebVitals{LCP: 4.0, CLS: 0.25, INP: 500}))
	assert.Equal(t, 25.0, CWVScore(models.CoreWebVitals{LCP: 9, CLS: 1, INP: 900}))
	assert.InDelta(t, 66.6667, CWVScore(models.CoreWebVitals{LCP: 2.0, CLS: 0.2, INP: 800}), 0.001)
}

func TestScoreBandAndRatioBand_DoNotShareBreakpoints(t *testing.T) {
	assert.Equal(t, models.BandGood, ScoreBand(90))
	assert.Equal(t, models.BandWarning, ScoreBand(75))
	assert.Equal(t, models.BandPoor, ScoreBand(74.9))

	assert.Equal(t, models.BandGood, RatioBand(0.9))
	assert.Equal(t, models.BandWarning, RatioBand(0.7))
	assert.Equal(t, models.BandPoor, RatioBand(0.69))
}

func TestHealthScore_Weights(t *testing.T) {
	perfect := snapshot(models.CoreWebVitals{LCP: 1, CLS: 0, INP: 50}, 1, 1, 1, 1, 1)
	assert.InDelta(t, 1.0, HealthScore(perfect), 1e-9)

	zero := snapshot(models.CoreWebVitals{LCP: 10, CLS: 1, INP: 1000}, 0, 0, 0, 0, 0)
	// only the poor CWV floor (25/100 * 0.3) remains
	assert.InDelta(t, 0.075, HealthScore(zero), 1e-9)

	m := snapshot(models.CoreWebVitals{LCP: 3, CLS: 0.05, INP: 150}, 0.8, 0.9, 0.7, 0.5, 0.6)
	want := 0.3*(275.0/3/100) + 0.2*0.8 + 0.2*0.9 + 0.1*0.7 + 0.1*0.5 + 0.1*0.6
	assert.InDelta(t, want, HealthScore(m), 1e-9)
}

func TestHealthScore_BoundedForValidInputs(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		m := snapshot(
			models.CoreWebVitals{LCP: r.Float64() * 8, CLS: r.Float64(), INP: r.Float64() * 1000},
			r.Float64(), r.Float64(), r.Float64(), r.Float64(), r.Float64(),
		)
		s := HealthScore(m)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0+1e-12)
	}
}

func TestHealthStatus(t *testing.T) {
	assert.Equal(t, models.HealthCritical, HealthStatus(nil))

	healthy := snapshot(models.CoreWebVitals{LCP: 2, CLS: 0.05, INP: 100}, 0.95, 0.95, 0.95, 0.8, 0.9)
	assert.Equal(t, models.HealthHealthy, HealthStatus(&healthy))

	assert.Equal(t, models.HealthHealthy, ClassifyHealth(0.8))
	assert.Equal(t, models.HealthAtRisk, ClassifyHealth(0.79))
	assert.Equal(t, models.HealthAtRisk, ClassifyHealth(0.6))
	assert.Equal(t, models.HealthCritical, ClassifyHealth(0.59))
}

func TestBands(t *testing.T) {
	b := Bands(models.CoreWebVitals{LCP: 3.1, CLS: 0.05, INP: 650})
	assert.Equal(t, VitalBands{LCP: models.BandWarning, CLS: models.BandGood, INP: models.BandPoor}, b)
}
