package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/models"
)

const projectColumns = `id, name, url, description, tags, jira_key, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (models.Project, error) {
	var (
		p         models.Project
		tags      string
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.URL, &p.Description, &tags, &p.JiraKey, &updatedAt); err != nil {
		return models.Project{}, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return models.Project{}, fmt.Errorf("project %s: corrupt tags column: %w", p.ID, err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return p, nil
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	out := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProject retrieves a project by id, or nil when absent.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProject(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProject(ctx context.Context, q querier, id string) (*models.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// UpsertProject inserts or replaces a project and refreshes updatedAt.
func (s *Store) UpsertProject(ctx context.Context, p models.Project) (models.Project, error) {
	if strings.TrimSpace(p.ID) == "" {
		return models.Project{}, fmt.Errorf("%w: project id is required", perrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p = p.Clone()
	p.Tags = models.NormalizeTags(p.Tags)
	p.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
	if err := saveProject(ctx, s.db, p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveProject(ctx context.Context, e execer, p models.Project) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	_, err = e.ExecContext(ctx, `
	INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, url = excluded.url, description = excluded.description,
		tags = excluded.tags, jira_key = excluded.jira_key, updated_at = excluded.updated_at
	`, p.ID, p.Name, p.URL, p.Description, string(tags), p.JiraKey, p.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// UpdateProject applies a partial update to an existing project.
func (s *Store) UpdateProject(ctx context.Context, id string, patch models.ProjectPatch) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out models.Project
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return perrors.NotFound("project", id)
		}
		out = patch.Apply(*p)
		out.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		return saveProject(ctx, tx, out)
	})
	if err != nil {
		return models.Project{}, err
	}
	return out, nil
}
