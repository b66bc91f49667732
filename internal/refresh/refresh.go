// Package refresh pulls delivery-flow metrics from Jira into the repository
// and runs the periodic jobs of the service.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/repo"
)

// FlowSource returns a month of flow metrics, or nil when Jira cannot serve it.
// *jira.FlowFetcher satisfies it.
type FlowSource interface {
	FlowMetrics(ctx context.Context, projectKey string, month models.Month) *models.FlowMetrics
}

// Invalidator drops cached performance data of a project. *crux.Fetcher satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, projectID string) error
}

var defaultPerf = map[string]models.PerfMetrics{
	"diptyque":  perf(1.9, 0.06, 110, 0.91, 0.94, 0.93),
	"elon":      perf(2.8, 0.15, 185, 0.76, 0.83, 0.81),
	"swissense": perf(3.2, 0.18, 220, 0.73, 0.81, 0.78),
	"byredo":    perf(2.1, 0.08, 125, 0.88, 0.92, 0.90),
}

func perf(lcp, cls, inp, a11y, bp, seo float64) models.PerfMetrics {
	return models.PerfMetrics{
		CoreWebVitals: models.CoreWebVitals{LCP: lcp, CLS: cls, INP: inp},
		Accessibility: a11y,
		BestPractices: bp,
		SEO:           seo,
	}
}

// DefaultPerf is the performance block stored with a refreshed month that has
// no snapshot yet.
func DefaultPerf(projectID string) models.PerfMetrics {
	if p, ok := defaultPerf[projectID]; ok {
		return p
	}
	return perf(2.5, 0.1, 200, 0.80, 0.85, 0.80)
}

// Service refreshes flow metrics.
type Service struct {
	repo        repo.Repository
	flow        FlowSource
	invalidator Invalidator
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewService creates a refresh service. invalidator may be nil.
func NewService(r repo.Repository, flow FlowSource, invalidator Invalidator, logger zerolog.Logger) *Service {
	return &Service{
		repo:        r,
		flow:        flow,
		invalidator: invalidator,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With().Str("component", "refresh").Logger(),
	}
}

// SetClock overrides the time source (for testing).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetMetrics sets the metrics collector.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Result describes one refreshed month.
type Result struct {
	ProjectID string                `json:"projectId"`
	Month     models.Month          `json:"month"`
	JiraKey   string                `json:"jiraKey"`
	Metrics   models.ProjectMetrics `json:"metrics"`
}

// RefreshFlow replaces the flow block of (projectID, month) with fresh Jira
// data, keeping the stored performance block. An empty month means the
// current UTC month.
func (s *Service) RefreshFlow(ctx context.Context, projectID string, month models.Month) (*Result, error) {
	res, err := s.refresh(ctx, projectID, month)
	s.record(err)
	return res, err
}

func (s *Service) refresh(ctx context.Context, projectID string, month models.Month) (*Result, error) {
	if month == "" {
		month = models.MonthOf(s.now())
	} else if _, err := models.ParseMonth(month.String()); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if p == nil || p.JiraKey == "" {
		return nil, fmt.Errorf("project %q not found or missing Jira key: %w", projectID, perrors.ErrNotFound)
	}

	flow := s.flow.FlowMetrics(ctx, p.JiraKey, month)
	if flow == nil {
		return nil, fmt.Errorf("flow metrics of %s for %s: %w", p.JiraKey, month, perrors.ErrUnavailable)
	}

	existing, err := s.repo.GetProjectMetrics(ctx, projectID, month)
	if err != nil {
		return nil, fmt.Errorf("loading metrics of %s: %w", projectID, err)
	}
	pm := DefaultPerf(projectID)
	if len(existing) > 0 {
		pm = existing[0].Perf
	}

	stored, err := s.repo.UpsertProjectMetrics(ctx, models.ProjectMetrics{
		ProjectID: projectID,
		Month:     month,
		Perf:      pm,
		Flow:      *flow,
	})
	if err != nil {
		return nil, fmt.Errorf("storing metrics of %s: %w", projectID, err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, projectID); err != nil {
			s.logger.Warn().Err(err).Str("project_id", projectID).Msg("cache invalidation failed")
		}
	}

	s.logger.Info().
		Str("project_id", projectID).
		Str("jira_key", p.JiraKey).
		Str("month", month.String()).
		Float64("throughput", stored.Flow.ThroughputRatio).
		Msg("flow metrics refreshed")
	return &Result{ProjectID: projectID, Month: month, JiraKey: p.JiraKey, Metrics: stored}, nil
}

func (s *Service) record(err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.RecordRefresh("error")
		return
	}
	s.metrics.RecordRefresh("ok")
}

// Summary reports a RefreshAll run.
type Summary struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RefreshAll refreshes every project that has a Jira key. Per-project
// failures are collected, not returned.
func (s *Service) RefreshAll(ctx context.Context, month models.Month) (*Summary, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	sum := &Summary{Refreshed: []string{}}
	for _, p := range projects {
		if p.JiraKey == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if _, err := s.RefreshFlow(ctx, p.ID, month); err != nil {
			if sum.Failed == nil {
				sum.Failed = make(map[string]string)
			}
			sum.Failed[p.ID] = err.Error()
			continue
		}
		sum.Refreshed = append(sum.Refreshed, p.ID)
	}
	s.logger.Info().Int("refreshed", len(sum.Refreshed)).Int("failed", len(sum.Failed)).Msg("refresh run complete")
	return sum, nil
}
