package repo

import (
	"fmt"
	"sort"
	"strings"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/models"
)

// ValidateMetrics rejects snapshots without a project or with a malformed month.
func ValidateMetrics(m models.ProjectMetrics) error {
	if strings.TrimSpace(m.ProjectID) == "" {
		return fmt.Errorf("%w: metrics project id is required", perrors.ErrInvalidInput)
	}
	if _, err := models.ParseMonth(string(m.Month)); err != nil {
		return fmt.Errorf("metrics for %s: %w", m.ProjectID, err)
	}
	return nil
}

// ValidateNewSuggestion checks the caller-supplied suggestion fields.
func ValidateNewSuggestion(ns models.NewSuggestion) error {
	if strings.TrimSpace(ns.Text) == "" {
		return fmt.Errorf("%w: suggestion text is required", perrors.ErrInvalidInput)
	}
	if !ns.Source.Valid() {
		return fmt.Errorf("%w: unknown suggestion source %q", perrors.ErrInvalidInput, ns.Source)
	}
	if _, err := models.ParseSuggestionStatus(string(ns.Status)); err != nil {
		return err
	}
	return nil
}

// SortProjects orders projects by name, then id.
func SortProjects(ps []models.Project) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].ID < ps[j].ID
	})
}
