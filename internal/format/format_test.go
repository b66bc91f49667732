package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/pulse/internal/models"
)

func TestNumbers(t *testing.T) {
	assert.Equal(t, "88", Score(0.875))
	assert.Equal(t, "91%", Percent(0.91))
	assert.Equal(t, "0%", Percent(0))
	assert.Equal(t, "7d", Days(7))
	assert.Equal(t, "3.5d", Days(3.5))
	assert.Equal(t, "0.50", Ratio(0.5))
}

func TestVitals(t *testing.T) {
	assert.Equal(t, "2.5s", LCP(2.5))
	assert.Equal(t, "1.9s", LCP(1.94))
	assert.Equal(t, "0.100", CLS(0.1))
	assert.Equal(t, "0.085", CLS(0.0849))
	assert.Equal(t, "200ms", INP(200))
	assert.Equal(t, "186ms", INP(185.6))
}

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "March 2025", MonthLabel("2025-03"))
	assert.Equal(t, "December 2024", MonthLabel("2024-12"))
	assert.Equal(t, "bogus", MonthLabel("bogus"))
}

func TestLastFullMonth(t *testing.T) {
	assert.Equal(t, models.Month("2025-02"), LastFullMonth(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.Month("2024-12"), LastFullMonth(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestQualityWindow(t *testing.T) {
	assert.Equal(t, "14-day lookback", QualityWindow(models.FlowMetrics{}))

	start := time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "Mar 18 - Mar 31", QualityWindow(models.FlowMetrics{QualityWindowStart: &start, QualityWindowEnd: &end}))
}
