// Package format renders metric values for the CLI and the Slack digest.
package format

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/p-blackswan/pulse/internal/models"
)

// Score renders a 0..1 ratio as a whole number out of 100.
func Score(v float64) string {
	return strconv.Itoa(int(math.Round(v * 100)))
}

// Percent renders a 0..1 ratio as "NN%".
func Percent(v float64) string {
	return Score(v) + "%"
}

// Days renders a cycle time as "Nd".
func Days(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "d"
}

// Ratio renders a ratio with two decimals.
func Ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// LCP renders seconds with one decimal, e.g. "2.5s".
func LCP(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "s"
}

// CLS renders the layout-shift score with three decimals, e.g. "0.100".
func CLS(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(3)
}

// INP renders milliseconds rounded to an integer, e.g. "200ms".
func INP(v float64) string {
	return strconv.Itoa(int(math.Round(v))) + "ms"
}

// MonthLabel renders "2025-03" as "March 2025". Malformed months are returned as-is.
func MonthLabel(m models.Month) string {
	start, err := m.Start()
	if err != nil {
		return m.String()
	}
	return start.Format("January 2006")
}

// LastFullMonth returns the calendar month before the one containing now.
func LastFullMonth(now time.Time) models.Month {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return models.MonthOf(first.AddDate(0, -1, 0))
}

// QualityWindow renders the incident lookback window, e.g. "Mar 18 - Mar 31".
func QualityWindow(f models.FlowMetrics) string {
	if f.QualityWindowStart == nil || f.QualityWindowEnd == nil {
		return "14-day lookback"
	}
	return fmt.Sprintf("%s - %s", f.QualityWindowStart.UTC().Format("Jan 2"), f.QualityWindowEnd.UTC().Format("Jan 2"))
}
