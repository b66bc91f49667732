// Package seed loads the fixture set (projects, historical metrics, quality
// incidents) that primes a repository at start.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/repo"
)

//go:embed default.yaml
var defaultSeed []byte

// File is the on-disk fixture layout.
type File struct {
	Projects  []models.Project         `yaml:"projects"`
	Metrics   []models.ProjectMetrics  `yaml:"metrics"`
	Incidents []models.QualityIncident `yaml:"incidents"`
}

// Load reads and validates a seed file. An empty path loads the built-in fixtures.
func Load(path string) (*File, error) {
	if path == "" {
		return LoadBytes(defaultSeed)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return LoadBytes(raw)
}

// LoadBytes parses and validates seed YAML.
func LoadBytes(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate fails on the first malformed entry so bad fixtures never reach the repository.
func (f *File) Validate() error {
	ids := make(map[string]struct{}, len(f.Projects))
	for i, p := range f.Projects {
		if p.ID == "" {
			return fmt.Errorf("seed projects[%d]: %w: missing id", i, perrors.ErrInvalidInput)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("seed projects[%d]: %w: duplicate id %q", i, perrors.ErrInvalidInput, p.ID)
		}
		ids[p.ID] = struct{}{}
	}
	for i, m := range f.Metrics {
		if err := repo.ValidateMetrics(m); err != nil {
			return fmt.Errorf("seed metrics[%d]: %w", i, err)
		}
	}
	for i, inc := range f.Incidents {
		if inc.ProjectID == "" || inc.DetectedAt.IsZero() {
			return fmt.Errorf("seed incidents[%d]: %w: projectId and detectedAt are required", i, perrors.ErrInvalidInput)
		}
		switch inc.Status {
		case models.IncidentOpen, models.IncidentResolved:
		default:
			return fmt.Errorf("seed incidents[%d]: %w: unknown status %q", i, perrors.ErrInvalidInput, inc.Status)
		}
	}
	return nil
}

// Apply writes the fixtures into r. Incidents go first so stored metrics are enriched against them.
func Apply(ctx context.Context, r repo.Repository, f *File) error {
	if err := r.LoadQualityIncidents(ctx, f.Incidents); err != nil {
		return fmt.Errorf("seed incidents: %w", err)
	}
	for _, p := range f.Projects {
		if _, err := r.UpsertProject(ctx, p); err != nil {
			return fmt.Errorf("seed project %s: %w", p.ID, err)
		}
	}
	for _, m := range f.Metrics {
		if _, err := r.UpsertProjectMetrics(ctx, m); err != nil {
			return fmt.Errorf("seed metrics %s/%s: %w", m.ProjectID, m.Month, err)
		}
	}
	return nil
}
