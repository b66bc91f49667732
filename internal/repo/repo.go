// Package repo defines the storage abstraction of the dashboard and an
// in-memory implementation used for development, tests and seeded demos.
package repo

import (
	"context"
	"sort"
	"time"

	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/normalize"
)

// Repository owns projects, metrics snapshots, suggestions and quality incidents.
// Lookups of a single missing item return (nil, nil); updates of a missing item
// return an error wrapping errors.ErrNotFound. Returned values are copies.
type Repository interface {
	ListProjects(ctx context.Context) ([]models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	UpsertProject(ctx context.Context, p models.Project) (models.Project, error)
	UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) (models.Project, error)

	// GetProjectMetrics returns the enriched snapshots of a project in month order.
	// An empty month returns every snapshot.
	GetProjectMetrics(ctx context.Context, projectID string, month models.Month) ([]models.ProjectMetrics, error)
	GetLatestMetrics(ctx context.Context, projectID string) (*models.ProjectMetrics, error)
	UpsertProjectMetrics(ctx context.Context, m models.ProjectMetrics) (models.ProjectMetrics, error)

	GetSuggestions(ctx context.Context, projectID string) ([]models.Suggestion, error)
	// CreateSuggestion stores a suggestion and, for AI suggestions, evicts the
	// oldest AI entries beyond models.MaxAISuggestions. A text already held by
	// the project is rejected with errors.ErrConflict.
	CreateSuggestion(ctx context.Context, projectID string, s models.NewSuggestion) (models.Suggestion, error)
	UpdateSuggestion(ctx context.Context, projectID, id string, u models.SuggestionUpdate) (models.Suggestion, error)

	GetQualityIncidents(ctx context.Context, projectID string) ([]models.QualityIncident, error)
	// LoadQualityIncidents replaces the incident ledger. It is called once at start.
	LoadQualityIncidents(ctx context.Context, incidents []models.QualityIncident) error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// Enrich applies the quality-window enrichment to every snapshot.
func Enrich(ms []models.ProjectMetrics, incidents []models.QualityIncident) ([]models.ProjectMetrics, error) {
	out := make([]models.ProjectMetrics, 0, len(ms))
	for _, m := range ms {
		e, err := normalize.EnrichQualityWindow(m.ProjectID, m, incidents)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// EvictAI returns the ids of AI suggestions to drop so that at most keep remain.
// Suggestions must be in insertion order; ties on CreatedAt keep the later insert.
func EvictAI(list []models.Suggestion, keep int) []string {
	type entry struct {
		id  string
		at  time.Time
		pos int
	}
	var ai []entry
	for i, s := range list {
		if s.Source == models.SourceAI {
			ai = append(ai, entry{id: s.ID, at: s.CreatedAt, pos: i})
		}
	}
	if len(ai) <= keep {
		return nil
	}
	sort.SliceStable(ai, func(i, j int) bool {
		if !ai[i].at.Equal(ai[j].at) {
			return ai[i].at.After(ai[j].at)
		}
		return ai[i].pos > ai[j].pos
	})
	ids := make([]string, 0, len(ai)-keep)
	for _, e := range ai[keep:] {
		ids = append(ids, e.id)
	}
	return ids
}
