// Package normalize enriches stored metrics snapshots with the rolling
// quality-incident window and the quality ratio derived from it.
package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/p-blackswan/pulse/internal/models"
)

// QualityWindowDays is the length of the trailing incident window, inclusive.
const QualityWindowDays = 14

// Window is the closed interval [Start, End] used to count incidents.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window (both ends inclusive).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// QualityWindow returns the 14-day window closing at the last millisecond of month.
// The start is midnight UTC of the first of the 14 days.
func QualityWindow(month models.Month) (Window, error) {
	end, err := month.End()
	if err != nil {
		return Window{}, err
	}
	start := time.Date(end.Year(), end.Month(), end.Day()-(QualityWindowDays-1), 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: end}, nil
}

// CountIncidents counts the incidents of projectID detected inside w.
// Resolution time plays no part.
func CountIncidents(projectID string, w Window, incidents []models.QualityIncident) int {
	n := 0
	for _, inc := range incidents {
		if inc.ProjectID == projectID && w.Contains(inc.DetectedAt) {
			n++
		}
	}
	return n
}

// QualityRatio is max(0, 1 - issues/total) rounded to two decimals.
// A non-positive total is treated as 1.
func QualityRatio(issues, total int) float64 {
	if total <= 0 {
		total = 1
	}
	ratio := math.Max(0, 1-float64(issues)/float64(total))
	return decimal.NewFromFloat(ratio).Round(2).InexactFloat64()
}

// EnrichQualityWindow returns a copy of m whose quality fields are recomputed
// from the incident ledger. Any stored qualitySpecial/qualityIssuesCount is
// overwritten, so applying it to an already enriched snapshot is a no-op.
func EnrichQualityWindow(projectID string, m models.ProjectMetrics, incidents []models.QualityIncident) (models.ProjectMetrics, error) {
	w, err := QualityWindow(m.Month)
	if err != nil {
		return models.ProjectMetrics{}, fmt.Errorf("enrich %s/%s: %w", projectID, m.Month, err)
	}

	count := CountIncidents(projectID, w, incidents)
	total := models.IntOr(m.Flow.TotalItemsCount, models.IntOr(m.Flow.ThroughputCount, 0))

	out := m.Clone()
	out.Flow.QualityIssuesCount = models.IntPtr(count)
	out.Flow.QualitySpecial = QualityRatio(count, total)
	start, end := w.Start, w.End
	out.Flow.QualityWindowStart = &start
	out.Flow.QualityWindowEnd = &end
	return out, nil
}

// EnrichAll enriches every snapshot with the same ledger. It fails on the first malformed month.
func EnrichAll(projectID string, ms []models.ProjectMetrics, incidents []models.QualityIncident) ([]models.ProjectMetrics, error) {
	out := make([]models.ProjectMetrics, 0, len(ms))
	for _, m := range ms {
		e, err := EnrichQualityWindow(projectID, m, incidents)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
