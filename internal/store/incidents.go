package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/p-blackswan/pulse/internal/models"
)

// GetQualityIncidents returns the incidents attributed to projectID.
func (s *Store) GetQualityIncidents(ctx context.Context, projectID string) ([]models.QualityIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incidents(ctx, projectID)
}

func (s *Store) incidents(ctx context.Context, projectID string) ([]models.QualityIncident, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT project_id, key, category, status, detected_at, resolved_at
	FROM quality_incidents WHERE project_id = ? ORDER BY detected_at, key
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []models.QualityIncident
	for rows.Next() {
		var (
			inc        models.QualityIncident
			status     string
			detectedAt int64
			resolvedAt sql.NullInt64
		)
		if err := rows.Scan(&inc.ProjectID, &inc.Key, &inc.Category, &status, &detectedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.Status = models.IncidentStatus(status)
		inc.DetectedAt = time.UnixMilli(detectedAt).UTC()
		if resolvedAt.Valid {
			t := time.UnixMilli(resolvedAt.Int64).UTC()
			inc.ResolvedAt = &t
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// LoadQualityIncidents replaces the incident ledger.
func (s *Store) LoadQualityIncidents(ctx context.Context, incidents []models.QualityIncident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quality_incidents`); err != nil {
			return fmt.Errorf("failed to clear incidents: %w", err)
		}
		for _, inc := range incidents {
			var resolved sql.NullInt64
			if inc.ResolvedAt != nil {
				resolved = sql.NullInt64{Int64: inc.ResolvedAt.UnixMilli(), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO quality_incidents (project_id, key, category, status, detected_at, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?)
			`, inc.ProjectID, inc.Key, inc.Category, string(inc.Status), inc.DetectedAt.UnixMilli(), resolved)
			if err != nil {
				return fmt.Errorf("failed to insert incident %s: %w", inc.Key, err)
			}
		}
		s.logger.Info().Int("incidents", len(incidents)).Msg("quality incidents loaded")
		return nil
	})
}
