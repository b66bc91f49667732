package jira

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
)

const (
	defaultThroughputRatio = 0.5
	defaultWIPRatio        = 0.4
	defaultQualitySpecial  = 0.7
	defaultCycleDays       = 5
)

// DefaultFlow is reported for a month in which the project had no issues.
func DefaultFlow() models.FlowMetrics {
	return models.FlowMetrics{
		ThroughputRatio:    defaultThroughputRatio,
		WIPRatio:           defaultWIPRatio,
		QualitySpecial:     defaultQualitySpecial,
		CycleTimeP50:       5,
		CycleTimeP85:       10,
		CycleTimeP95:       15,
		WIPCount:           models.IntPtr(11),
		ThroughputCount:    models.IntPtr(15),
		TotalItemsCount:    models.IntPtr(30),
		QualityIssuesCount: models.IntPtr(2),
	}
}

// FlowJQL selects the issues that were in flight at some point during month:
// created before it ended and either unresolved or resolved after it began.
func FlowJQL(projectKey string, month models.Month) (string, error) {
	start, err := month.Start()
	if err != nil {
		return "", err
	}
	end, err := month.End()
	if err != nil {
		return "", err
	}
	const day = "2006-01-02"
	return fmt.Sprintf(`project = "%s" AND created <= "%s 23:59" AND (resolutiondate >= "%s" OR resolution IS EMPTY) ORDER BY created ASC`,
		projectKey, end.Format(day), start.Format(day)), nil
}

// ComputeFlow derives flow metrics from a month's issues. An issue counts as
// completed when it has a resolution date no later than now.
func ComputeFlow(issues []Issue, now time.Time) models.FlowMetrics {
	if len(issues) == 0 {
		return DefaultFlow()
	}

	total := len(issues)
	completed := 0
	var cycles []float64
	for _, is := range issues {
		res := is.Fields.ResolutionDate
		if res == nil || res.IsZero() || res.After(now) {
			continue
		}
		completed++
		days := res.Sub(is.Fields.Created.Time).Hours() / 24
		if days > 0 {
			cycles = append(cycles, days)
		}
	}
	open := total - completed
	sort.Float64s(cycles)

	return models.FlowMetrics{
		ThroughputRatio:    clamp01(float64(completed) / float64(total)),
		WIPRatio:           clamp01(float64(open) / float64(total)),
		QualitySpecial:     defaultQualitySpecial,
		CycleTimeP50:       percentile(cycles, 0.50),
		CycleTimeP85:       percentile(cycles, 0.85),
		CycleTimeP95:       percentile(cycles, 0.95),
		WIPCount:           models.IntPtr(open),
		ThroughputCount:    models.IntPtr(completed),
		TotalItemsCount:    models.IntPtr(total),
		QualityIssuesCount: models.IntPtr(0),
	}
}

// percentile uses the nearest-rank index ceil(n*p)-1 over sorted values and
// rounds to whole days. Empty input or a zero sample yields the default cycle
// time; a sub-day sample rounds to 0.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return defaultCycleDays
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if sorted[idx] == 0 {
		return defaultCycleDays
	}
	return math.Round(sorted[idx])
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Searcher runs JQL searches. *Client satisfies it.
type Searcher interface {
	SearchIssues(ctx context.Context, jql string) ([]Issue, error)
}

// FlowFetcher turns a project's Jira issues into monthly flow metrics.
type FlowFetcher struct {
	search  Searcher
	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewFlowFetcher creates a fetcher over the given searcher.
func NewFlowFetcher(s Searcher, logger zerolog.Logger) *FlowFetcher {
	return &FlowFetcher{
		search: s,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "jira-flow").Logger(),
	}
}

// SetClock overrides the time source (for testing).
func (f *FlowFetcher) SetClock(now func() time.Time) { f.now = now }

// SetMetrics sets the metrics collector.
func (f *FlowFetcher) SetMetrics(m *metrics.Metrics) { f.metrics = m }

// FlowMetrics returns the flow metrics of projectKey for month, or nil when
// Jira cannot be reached or the month is malformed.
func (f *FlowFetcher) FlowMetrics(ctx context.Context, projectKey string, month models.Month) *models.FlowMetrics {
	jql, err := FlowJQL(projectKey, month)
	if err != nil {
		f.logger.Warn().Err(err).Str("month", month.String()).Msg("cannot build flow query")
		return nil
	}

	start := time.Now()
	issues, err := f.search.SearchIssues(ctx, jql)
	if f.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		f.metrics.RecordUpstream("jira", result, time.Since(start).Seconds())
	}
	if err != nil {
		f.logger.Warn().Err(err).Str("project_key", projectKey).Str("month", month.String()).Msg("jira search failed")
		if f.metrics != nil {
			f.metrics.RecordFallback("jira")
		}
		return nil
	}

	flow := ComputeFlow(issues, f.now())
	f.logger.Debug().
		Str("project_key", projectKey).
		Str("month", month.String()).
		Int("issues", len(issues)).
		Float64("throughput", flow.ThroughputRatio).
		Msg("flow metrics computed")
	return &flow
}
