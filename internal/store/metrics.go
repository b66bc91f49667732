package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/repo"
)

// GetProjectMetrics returns the enriched snapshots of a project in month
// order. An empty month returns every snapshot.
func (s *Store) GetProjectMetrics(ctx context.Context, projectID string, month models.Month) ([]models.ProjectMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT project_id, month, perf, flow FROM project_metrics WHERE project_id = ?`
	args := []any{projectID}
	if month != "" {
		query += ` AND month = ?`
		args = append(args, string(month))
	}
	query += ` ORDER BY month`

	raw, err := s.queryMetrics(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, projectID, raw)
}

// GetLatestMetrics returns the snapshot with the greatest month, or nil.
func (s *Store) GetLatestMetrics(ctx context.Context, projectID string) (*models.ProjectMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.queryMetrics(ctx,
		`SELECT project_id, month, perf, flow FROM project_metrics WHERE project_id = ? ORDER BY month DESC LIMIT 1`,
		projectID)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out, err := s.enrich(ctx, projectID, raw)
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// UpsertProjectMetrics stores a snapshot, replacing any for the same month.
func (s *Store) UpsertProjectMetrics(ctx context.Context, m models.ProjectMetrics) (models.ProjectMetrics, error) {
	if err := repo.ValidateMetrics(m); err != nil {
		return models.ProjectMetrics{}, err
	}
	perf, err := json.Marshal(m.Perf)
	if err != nil {
		return models.ProjectMetrics{}, fmt.Errorf("encoding perf: %w", err)
	}
	flow, err := json.Marshal(m.Flow)
	if err != nil {
		return models.ProjectMetrics{}, fmt.Errorf("encoding flow: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO project_metrics (project_id, month, perf, flow, updated_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(project_id, month) DO UPDATE SET
		perf = excluded.perf, flow = excluded.flow, updated_at = excluded.updated_at
	`, m.ProjectID, string(m.Month), string(perf), string(flow), s.now().UnixMilli())
	if err != nil {
		return models.ProjectMetrics{}, fmt.Errorf("failed to save metrics: %w", err)
	}

	out, err := s.enrich(ctx, m.ProjectID, []models.ProjectMetrics{m.Clone()})
	if err != nil {
		return models.ProjectMetrics{}, err
	}
	return out[0], nil
}

func (s *Store) queryMetrics(ctx context.Context, query string, args ...any) ([]models.ProjectMetrics, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var out []models.ProjectMetrics
	for rows.Next() {
		var (
			m          models.ProjectMetrics
			month      string
			perf, flow string
		)
		if err := rows.Scan(&m.ProjectID, &month, &perf, &flow); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		m.Month = models.Month(month)
		if err := json.Unmarshal([]byte(perf), &m.Perf); err != nil {
			return nil, fmt.Errorf("metrics %s/%s: corrupt perf column: %w", m.ProjectID, month, err)
		}
		if err := json.Unmarshal([]byte(flow), &m.Flow); err != nil {
			return nil, fmt.Errorf("metrics %s/%s: corrupt flow column: %w", m.ProjectID, month, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// enrich derives the quality-window fields from the incident ledger.
// Callers hold s.mu.
func (s *Store) enrich(ctx context.Context, projectID string, ms []models.ProjectMetrics) ([]models.ProjectMetrics, error) {
	if len(ms) == 0 {
		return []models.ProjectMetrics{}, nil
	}
	incidents, err := s.incidents(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return repo.Enrich(ms, incidents)
}
