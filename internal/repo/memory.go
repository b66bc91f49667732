package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/models"
)

// MemoryRepo is an in-memory Repository. All state sits behind one RWMutex,
// which makes upsert-then-enrich and create-then-evict atomic.
type MemoryRepo struct {
	mu          sync.RWMutex
	now         Clock
	projects    map[string]models.Project
	metrics     map[models.MetricsKey]models.ProjectMetrics
	suggestions map[string][]models.Suggestion
	incidents   []models.QualityIncident
}

// MemoryOption configures a MemoryRepo.
type MemoryOption func(*MemoryRepo)

// WithClock overrides the time source.
func WithClock(c Clock) MemoryOption {
	return func(r *MemoryRepo) { r.now = c }
}

// NewMemoryRepo creates an empty in-memory repository.
func NewMemoryRepo(opts ...MemoryOption) *MemoryRepo {
	r := &MemoryRepo{
		now:         SystemClock,
		projects:    make(map[string]models.Project),
		metrics:     make(map[models.MetricsKey]models.ProjectMetrics),
		suggestions: make(map[string][]models.Suggestion),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Repository = (*MemoryRepo)(nil)

func (r *MemoryRepo) ListProjects(_ context.Context) ([]models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p.Clone())
	}
	SortProjects(out)
	return out, nil
}

func (r *MemoryRepo) GetProject(_ context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	c := p.Clone()
	return &c, nil
}

func (r *MemoryRepo) UpsertProject(_ context.Context, p models.Project) (models.Project, error) {
	if strings.TrimSpace(p.ID) == "" {
		return models.Project{}, fmt.Errorf("%w: project id is required", perrors.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p = p.Clone()
	p.Tags = models.NormalizeTags(p.Tags)
	p.UpdatedAt = r.now()
	r.projects[p.ID] = p
	return p.Clone(), nil
}

func (r *MemoryRepo) UpdateProject(_ context.Context, id string, patch models.ProjectPatch) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return models.Project{}, perrors.NotFound("project", id)
	}
	p = patch.Apply(p.Clone())
	p.UpdatedAt = r.now()
	r.projects[id] = p
	return p.Clone(), nil
}

func (r *MemoryRepo) GetProjectMetrics(_ context.Context, projectID string, month models.Month) ([]models.ProjectMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var raw []models.ProjectMetrics
	for k, m := range r.metrics {
		if k.ProjectID != projectID || (month != "" && k.Month != month) {
			continue
		}
		raw = append(raw, m)
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].Month < raw[j].Month })
	return Enrich(raw, r.incidents)
}

func (r *MemoryRepo) GetLatestMetrics(_ context.Context, projectID string) (*models.ProjectMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.ProjectMetrics
	for k, m := range r.metrics {
		if k.ProjectID != projectID {
			continue
		}
		if latest == nil || k.Month > latest.Month {
			m := m
			latest = &m
		}
	}
	if latest == nil {
		return nil, nil
	}
	out, err := Enrich([]models.ProjectMetrics{*latest}, r.incidents)
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *MemoryRepo) UpsertProjectMetrics(_ context.Context, m models.ProjectMetrics) (models.ProjectMetrics, error) {
	if err := ValidateMetrics(m); err != nil {
		return models.ProjectMetrics{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics[m.Key()] = m.Clone()
	out, err := Enrich([]models.ProjectMetrics{m}, r.incidents)
	if err != nil {
		return models.ProjectMetrics{}, err
	}
	return out[0], nil
}

func (r *MemoryRepo) GetSuggestions(_ context.Context, projectID string) ([]models.Suggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.Suggestion{}, r.suggestions[projectID]...), nil
}

func (r *MemoryRepo) CreateSuggestion(_ context.Context, projectID string, ns models.NewSuggestion) (models.Suggestion, error) {
	if err := ValidateNewSuggestion(ns); err != nil {
		return models.Suggestion{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.suggestions[projectID]
	for _, s := range list {
		if s.Text == ns.Text {
			return models.Suggestion{}, fmt.Errorf("%w: suggestion %q already exists for %s", perrors.ErrConflict, ns.Text, projectID)
		}
	}

	now := r.now()
	s := models.Suggestion{
		ID:        uuid.NewString(),
		Text:      ns.Text,
		Rationale: ns.Rationale,
		Source:    ns.Source,
		Status:    ns.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	list = append(list, s)

	if s.Source == models.SourceAI {
		if drop := EvictAI(list, models.MaxAISuggestions); len(drop) > 0 {
			list = removeIDs(list, drop)
		}
	}
	r.suggestions[projectID] = list
	return s, nil
}

func (r *MemoryRepo) UpdateSuggestion(_ context.Context, projectID, id string, u models.SuggestionUpdate) (models.Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.suggestions[projectID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if u.Status != nil {
			list[i].Status = *u.Status
		}
		list[i].UpdatedAt = r.now()
		return list[i], nil
	}
	return models.Suggestion{}, perrors.NotFound("suggestion", id)
}

func (r *MemoryRepo) GetQualityIncidents(_ context.Context, projectID string) ([]models.QualityIncident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.QualityIncident
	for _, inc := range r.incidents {
		if inc.ProjectID == projectID {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (r *MemoryRepo) LoadQualityIncidents(_ context.Context, incidents []models.QualityIncident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.incidents = append([]models.QualityIncident(nil), incidents...)
	return nil
}

func removeIDs(list []models.Suggestion, ids []string) []models.Suggestion {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := list[:0]
	for _, s := range list {
		if _, ok := drop[s.ID]; !ok {
			out = append(out, s)
		}
	}
	return out
}
