package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/repo"
)

const suggestionColumns = `id, text, rationale, source, status, created_at, updated_at`

type suggestionQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listSuggestions(ctx context.Context, q suggestionQuerier, projectID string) ([]models.Suggestion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	out := []models.Suggestion{}
	for rows.Next() {
		var (
			sg                   models.Suggestion
			source, status       string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&sg.ID, &sg.Text, &sg.Rationale, &source, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		sg.Source = models.SuggestionSource(source)
		st, err := models.ParseSuggestionStatus(status)
		if err != nil {
			return nil, fmt.Errorf("suggestion %s: %w", sg.ID, err)
		}
		sg.Status = st
		sg.CreatedAt = time.UnixMilli(createdAt).UTC()
		sg.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, sg)
	}
	return out, rows.Err()
}

// GetSuggestions returns a project's suggestions in insertion order.
func (s *Store) GetSuggestions(ctx context.Context, projectID string) ([]models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSuggestions(ctx, s.db, projectID)
}

// CreateSuggestion stores a suggestion and trims AI suggestions beyond
// models.MaxAISuggestions in the same transaction.
func (s *Store) CreateSuggestion(ctx context.Context, projectID string, ns models.NewSuggestion) (models.Suggestion, error) {
	if err := repo.ValidateNewSuggestion(ns); err != nil {
		return models.Suggestion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Truncate(time.Millisecond)
	sg := models.Suggestion{
		ID:        uuid.NewString(),
		Text:      ns.Text,
		Rationale: ns.Rationale,
		Source:    ns.Source,
		Status:    ns.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM suggestions WHERE project_id = ? AND text = ?`, projectID, ns.Text).Scan(&n); err != nil {
			return fmt.Errorf("failed to check duplicate suggestion: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: suggestion %q already exists for %s", perrors.ErrConflict, ns.Text, projectID)
		}

		if _, err := tx.ExecContext(ctx, `
		INSERT INTO suggestions (id, project_id, text, rationale, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sg.ID, projectID, sg.Text, sg.Rationale, string(sg.Source), string(sg.Status),
			now.UnixMilli(), now.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert suggestion: %w", err)
		}

		if sg.Source != models.SourceAI {
			return nil
		}
		list, err := listSuggestions(ctx, tx, projectID)
		if err != nil {
			return err
		}
		for _, id := range repo.EvictAI(list, models.MaxAISuggestions) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM suggestions WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to evict suggestion %s: %w", id, err)
			}
			s.logger.Debug().Str("project_id", projectID).Str("suggestion_id", id).Msg("evicted ai suggestion")
		}
		return nil
	})
	if err != nil {
		return models.Suggestion{}, err
	}
	return sg, nil
}

// UpdateSuggestion applies u to the suggestion id of projectID.
func (s *Store) UpdateSuggestion(ctx context.Context, projectID, id string, u models.SuggestionUpdate) (models.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out models.Suggestion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		list, err := listSuggestions(ctx, tx, projectID)
		if err != nil {
			return err
		}
		found := false
		for _, sg := range list {
			if sg.ID == id {
				out, found = sg, true
				break
			}
		}
		if !found {
			return perrors.NotFound("suggestion", id)
		}
		if u.Status != nil {
			out.Status = *u.Status
		}
		out.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		_, err = tx.ExecContext(ctx, `UPDATE suggestions SET status = ?, updated_at = ? WHERE id = ?`,
			string(out.Status), out.UpdatedAt.UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("failed to update suggestion: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Suggestion{}, err
	}
	return out, nil
}
