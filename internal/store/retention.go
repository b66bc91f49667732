package store

import (
	"context"
	"fmt"
	"time"

	"github.com/p-blackswan/pulse/internal/models"
)

// RetentionCutoff returns the oldest month kept when keepMonths months,
// including the current one, are retained.
func RetentionCutoff(now time.Time, keepMonths int) models.Month {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return models.MonthOf(first.AddDate(0, -(keepMonths - 1), 0))
}

// PruneMetricsBefore deletes snapshots older than cutoff and returns how many were removed.
func (s *Store) PruneMetricsBefore(ctx context.Context, cutoff models.Month) (int64, error) {
	if _, err := models.ParseMonth(cutoff.String()); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM project_metrics WHERE month < ?", cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old metrics: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Str("before", cutoff.String()).Msg("pruned metrics")
	}
	return n, nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
