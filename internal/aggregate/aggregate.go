// Package aggregate computes portfolio-level KPIs and month-keyed trend series.
package aggregate

import (
	"math"
	"sort"

	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/scoring"
)

// ProjectSnapshot pairs a project with its latest metrics, which may be absent.
type ProjectSnapshot struct {
	Project models.Project
	Metrics *models.ProjectMetrics
}

// ProjectHistory pairs a project with every stored snapshot.
type ProjectHistory struct {
	Project models.Project
	Metrics []models.ProjectMetrics
}

// Portfolio holds the averaged KPIs over all projects that have metrics.
type Portfolio struct {
	TotalProjects          int     `json:"totalProjects"`
	AverageLCP             float64 `json:"averageLCP"`
	AverageCLS             float64 `json:"averageCLS"`
	AverageINP             float64 `json:"averageINP"`
	AverageAccessibility   float64 `json:"averageAccessibility"`
	AverageBestPractices   float64 `json:"averageBestPractices"`
	AverageSEO             float64 `json:"averageSeo"`
	AverageThroughput      float64 `json:"averageThroughput"`
	AverageThroughputCount float64 `json:"averageThroughputCount"`
	AverageWIP             float64 `json:"averageWip"`
	AverageWIPCount        float64 `json:"averageWipCount"`
	AverageQuality         float64 `json:"averageQuality"`
	AverageQualityIssues   float64 `json:"averageQualityIssues"`
	MedianCycleTime        float64 `json:"medianCycleTime"`
	HealthyProjects        int     `json:"healthyProjects"`
	AtRiskProjects         int     `json:"atRiskProjects"`
	CriticalProjects       int     `json:"criticalProjects"`
}

// Aggregate computes portfolio KPIs. TotalProjects counts every pair while the
// averages and health buckets only cover pairs with metrics.
func Aggregate(pairs []ProjectSnapshot) Portfolio {
	out := Portfolio{TotalProjects: len(pairs)}

	var ms []models.ProjectMetrics
	for _, p := range pairs {
		if p.Metrics != nil {
			ms = append(ms, *p.Metrics)
		}
	}
	if len(ms) == 0 {
		return out
	}

	n := float64(len(ms))
	cycle := make([]float64, 0, len(ms))
	for _, m := range ms {
		total := models.IntOr(m.Flow.TotalItemsCount, 0)
		out.AverageLCP += m.Perf.CoreWebVitals.LCP
		out.AverageCLS += m.Perf.CoreWebVitals.CLS
		out.AverageINP += m.Perf.CoreWebVitals.INP
		out.AverageAccessibility += m.Perf.Accessibility
		out.AverageBestPractices += m.Perf.BestPractices
		out.AverageSEO += m.Perf.SEO
		out.AverageThroughput += m.Flow.ThroughputRatio
		out.AverageThroughputCount += countOr(m.Flow.ThroughputCount, m.Flow.ThroughputRatio, total)
		out.AverageWIP += m.Flow.WIPRatio
		out.AverageWIPCount += countOr(m.Flow.WIPCount, m.Flow.WIPRatio, total)
		out.AverageQuality += m.Flow.QualitySpecial
		out.AverageQualityIssues += float64(models.IntOr(m.Flow.QualityIssuesCount, 0))
		cycle = append(cycle, m.Flow.CycleTimeP50)

		switch scoring.ClassifyHealth(scoring.HealthScore(m)) {
		case models.HealthHealthy:
			out.HealthyProjects++
		case models.HealthAtRisk:
			out.AtRiskProjects++
		default:
			out.CriticalProjects++
		}
	}

	out.AverageLCP /= n
	out.AverageCLS /= n
	out.AverageINP /= n
	out.AverageAccessibility /= n
	out.AverageBestPractices /= n
	out.AverageSEO /= n
	out.AverageThroughput /= n
	out.AverageThroughputCount /= n
	out.AverageWIP /= n
	out.AverageWIPCount /= n
	out.AverageQuality /= n
	out.AverageQualityIssues /= n

	sort.Float64s(cycle)
	out.MedianCycleTime = cycle[len(cycle)/2]
	return out
}

// countOr falls back to round(ratio * total) when the absolute count is missing.
func countOr(count *int, ratio float64, total int) float64 {
	if count != nil {
		return float64(*count)
	}
	return math.Round(ratio * float64(total))
}

// TrendPoint is the cross-project average of one month.
type TrendPoint struct {
	Month            models.Month `json:"month"`
	AvgLCP           float64      `json:"avgLCP"`
	AvgCLS           float64      `json:"avgCLS"`
	AvgINP           float64      `json:"avgINP"`
	AvgAccessibility float64      `json:"avgAccessibility"`
	AvgThroughput    float64      `json:"avgThroughput"`
	AvgQuality       float64      `json:"avgQuality"`
}

// TrendSeries groups snapshots by month across projects and averages each
// group. Points are sorted by month ascending; months without data are omitted.
func TrendSeries(histories []ProjectHistory) []TrendPoint {
	byMonth := make(map[models.Month][]models.ProjectMetrics)
	for _, h := range histories {
		for _, m := range h.Metrics {
			byMonth[m.Month] = append(byMonth[m.Month], m)
		}
	}

	out := make([]TrendPoint, 0, len(byMonth))
	for month, ms := range byMonth {
		n := float64(len(ms))
		p := TrendPoint{Month: month}
		for _, m := range ms {
			p.AvgLCP += m.Perf.CoreWebVitals.LCP
			p.AvgCLS += m.Perf.CoreWebVitals.CLS
			p.AvgINP += m.Perf.CoreWebVitals.INP
			p.AvgAccessibility += m.Perf.Accessibility
			p.AvgThroughput += m.Flow.ThroughputRatio
			p.AvgQuality += m.Flow.QualitySpecial
		}
		p.AvgLCP /= n
		p.AvgCLS /= n
		p.AvgINP /= n
		p.AvgAccessibility /= n
		p.AvgThroughput /= n
		p.AvgQuality /= n
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// ProjectTrendPoint is one month of a single project's trend.
type ProjectTrendPoint struct {
	Month         models.Month `json:"month"`
	LCP           float64      `json:"lcp"`
	CLS           float64      `json:"cls"`
	INP           float64      `json:"inp"`
	Accessibility float64      `json:"accessibility"`
	Throughput    float64      `json:"throughput"`
	Quality       float64      `json:"quality"`
}

// ProjectTrend is the month-ordered series of one project.
type ProjectTrend struct {
	ProjectID   string              `json:"projectId"`
	ProjectName string              `json:"projectName"`
	Data        []ProjectTrendPoint `json:"data"`
}

// ProjectTrends returns one ascending series per project, in input order.
func ProjectTrends(histories []ProjectHistory) []ProjectTrend {
	out := make([]ProjectTrend, 0, len(histories))
	for _, h := range histories {
		ms := append([]models.ProjectMetrics(nil), h.Metrics...)
		sort.Slice(ms, func(i, j int) bool { return ms[i].Month < ms[j].Month })

		t := ProjectTrend{ProjectID: h.Project.ID, ProjectName: h.Project.Name, Data: make([]ProjectTrendPoint, 0, len(ms))}
		for _, m := range ms {
			t.Data = append(t.Data, ProjectTrendPoint{
				Month:         m.Month,
				LCP:           m.Perf.CoreWebVitals.LCP,
				CLS:           m.Perf.CoreWebVitals.CLS,
				INP:           m.Perf.CoreWebVitals.INP,
				Accessibility: m.Perf.Accessibility,
				Throughput:    m.Flow.ThroughputRatio,
				Quality:       m.Flow.QualitySpecial,
			})
		}
		out = append(out, t)
	}
	return out
}

// FocusYear keeps the snapshots of year. When year is empty or no snapshot
// matches, the input is returned unchanged.
func FocusYear(ms []models.ProjectMetrics, year string) []models.ProjectMetrics {
	if year == "" {
		return ms
	}
	var out []models.ProjectMetrics
	for _, m := range ms {
		if m.Month.Year() == year {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return ms
	}
	return out
}

// Latest returns the snapshot with the greatest month, or nil.
func Latest(ms []models.ProjectMetrics) *models.ProjectMetrics {
	var best *models.ProjectMetrics
	for i := range ms {
		if best == nil || ms[i].Month > best.Month {
			m := ms[i]
			best = &m
		}
	}
	return best
}
