// Package dashboard composes the repository, scoring and aggregation into the
// read models served by the API, the CLI and the Slack digest.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/pulse/internal/aggregate"
	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/pagespeed"
	"github.com/p-blackswan/pulse/internal/repo"
	"github.com/p-blackswan/pulse/internal/scoring"
)

// DefaultConcurrency bounds the per-project fan-out of portfolio reads.
const DefaultConcurrency = 4

// VitalsSource supplies live per-device Core Web Vitals. *crux.Fetcher satisfies it.
type VitalsSource interface {
	Vitals(ctx context.Context, projectID string) models.DeviceVitals
}

// AccessibilitySource supplies live accessibility scores. *pagespeed.Client satisfies it.
type AccessibilitySource interface {
	Fetch(ctx context.Context, pageURL string, fallback float64) pagespeed.Result
	Unavailable(fallback float64) pagespeed.Result
}

// Service builds dashboard read models.
type Service struct {
	repo        repo.Repository
	vitals      VitalsSource
	a11y        AccessibilitySource
	focusYear   string
	concurrency int
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithVitals enables live vitals on project detail.
func WithVitals(v VitalsSource) Option { return func(s *Service) { s.vitals = v } }

// WithAccessibility sets the live accessibility source.
func WithAccessibility(a AccessibilitySource) Option { return func(s *Service) { s.a11y = a } }

// WithFocusYear scopes portfolio and detail views to one "YYYY" year when it has data.
func WithFocusYear(year string) Option { return func(s *Service) { s.focusYear = year } }

// WithConcurrency bounds the portfolio fan-out.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService creates a dashboard service.
func NewService(r repo.Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        r,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With().Str("component", "dashboard").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProjectCard is one project's row in the portfolio.
type ProjectCard struct {
	Project     models.Project         `json:"project"`
	Latest      *models.ProjectMetrics `json:"latest"`
	CWVScore    *float64               `json:"cwvScore,omitempty"`
	HealthScore *float64               `json:"healthScore,omitempty"`
	Health      models.HealthStatus    `json:"health"`
}

// PortfolioView is the portfolio page.
type PortfolioView struct {
	Summary       aggregate.Portfolio      `json:"summary"`
	Projects      []ProjectCard            `json:"projects"`
	Trend         []aggregate.TrendPoint   `json:"trend"`
	ProjectTrends []aggregate.ProjectTrend `json:"projectTrends"`
	GeneratedAt   time.Time                `json:"generatedAt"`
}

// Portfolio loads every project's scoped history concurrently and aggregates it.
func (s *Service) Portfolio(ctx context.Context) (*PortfolioView, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	histories := make([]aggregate.ProjectHistory, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range projects {
		i, p := i, p
		g.Go(func() error {
			ms, err := s.repo.GetProjectMetrics(gctx, p.ID, "")
			if err != nil {
				return fmt.Errorf("metrics of %s: %w", p.ID, err)
			}
			histories[i] = aggregate.ProjectHistory{Project: p, Metrics: aggregate.FocusYear(ms, s.focusYear)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &PortfolioView{
		Projects:      make([]ProjectCard, 0, len(projects)),
		Trend:         aggregate.TrendSeries(histories),
		ProjectTrends: aggregate.ProjectTrends(histories),
		GeneratedAt:   s.now(),
	}
	snapshots := make([]aggregate.ProjectSnapshot, 0, len(histories))
	for _, h := range histories {
		latest := aggregate.Latest(h.Metrics)
		snapshots = append(snapshots, aggregate.ProjectSnapshot{Project: h.Project, Metrics: latest})
		view.Projects = append(view.Projects, card(h.Project, latest))
	}
	view.Summary = aggregate.Aggregate(snapshots)

	if s.metrics != nil {
		s.metrics.SetHealthCounts(view.Summary.HealthyProjects, view.Summary.AtRiskProjects, view.Summary.CriticalProjects)
	}
	return view, nil
}

func card(p models.Project, latest *models.ProjectMetrics) ProjectCard {
	c := ProjectCard{Project: p, Latest: latest, Health: scoring.HealthStatus(latest)}
	if latest != nil {
		cwv := scoring.CWVScore(latest.Perf.CoreWebVitals)
		hs := scoring.HealthScore(*latest)
		c.CWVScore = &cwv
		c.HealthScore = &hs
	}
	return c
}

// Options tune ProjectDetail.
type Options struct {
	// LiveVitals attaches the current per-device vitals to the latest snapshot.
	// Stored data is not modified.
	LiveVitals bool
}

// VitalsOrigin tells whether device vitals came from storage or a live fetch.
type VitalsOrigin string

const (
	VitalsStored VitalsOrigin = "stored"
	VitalsLive   VitalsOrigin = "live"
)

// ProjectDetail is the project page.
type ProjectDetail struct {
	ProjectCard
	Metrics      []models.ProjectMetrics `json:"metrics"`
	Bands        *scoring.VitalBands     `json:"bands,omitempty"`
	Trend        aggregate.ProjectTrend  `json:"trend"`
	VitalsOrigin VitalsOrigin            `json:"vitalsOrigin"`
}

// ProjectDetail returns the detail view of id, or an error wrapping ErrNotFound.
func (s *Service) ProjectDetail(ctx context.Context, id string, opts Options) (*ProjectDetail, error) {
	p, err := s.project(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.GetProjectMetrics(ctx, id, "")
	if err != nil {
		return nil, fmt.Errorf("metrics of %s: %w", id, err)
	}
	ms := aggregate.FocusYear(all, s.focusYear)
	latest := aggregate.Latest(ms)

	origin := VitalsStored
	if opts.LiveVitals && s.vitals != nil && latest != nil {
		dv := s.vitals.Vitals(ctx, id)
		latest.Perf.CoreWebVitalsDevice = &dv
		origin = VitalsLive
	}

	hist := aggregate.ProjectHistory{Project: *p, Metrics: ms}
	d := &ProjectDetail{
		ProjectCard:  card(*p, latest),
		Metrics:      ms,
		Trend:        aggregate.ProjectTrends([]aggregate.ProjectHistory{hist})[0],
		VitalsOrigin: origin,
	}
	if latest != nil {
		b := scoring.Bands(latest.Perf.CoreWebVitals)
		d.Bands = &b
	}
	return d, nil
}

// AccessibilityView is the live accessibility score of a project.
type AccessibilityView struct {
	ProjectID string `json:"projectId"`
	URL       string `json:"url"`
	pagespeed.Result
}

// Accessibility returns the live score of id, falling back to the stored
// score of its latest snapshot (0 without metrics).
func (s *Service) Accessibility(ctx context.Context, id string) (*AccessibilityView, error) {
	p, err := s.project(ctx, id)
	if err != nil {
		return nil, err
	}
	latest, err := s.repo.GetLatestMetrics(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("latest metrics of %s: %w", id, err)
	}
	var fallback float64
	if latest != nil {
		fallback = latest.Perf.Accessibility
	}

	view := &AccessibilityView{ProjectID: id, URL: p.URL}
	switch {
	case s.a11y == nil && p.URL == "":
		view.Result = pagespeed.Result{Score: fallback, Source: pagespeed.SourceUnavailable, FetchedAt: s.now()}
	case s.a11y == nil:
		view.Result = pagespeed.Result{Score: fallback, Source: pagespeed.SourceStored, FetchedAt: s.now()}
	case p.URL == "":
		view.Result = s.a11y.Unavailable(fallback)
	default:
		view.Result = s.a11y.Fetch(ctx, p.URL, fallback)
	}
	return view, nil
}

func (s *Service) project(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	if p == nil {
		return nil, perrors.NotFound("project", id)
	}
	return p, nil
}
