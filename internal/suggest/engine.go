// Package suggest generates, rotates and updates improvement suggestions
// from a fixed rule table and an optional advisory generator.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/repo"
)

// MaxPerSource caps how many suggestions of each source one generation creates.
const MaxPerSource = 3

// Engine generates suggestions for a project. Generation for one project is
// serialised; different projects proceed in parallel.
type Engine struct {
	repo    repo.Repository
	advisor Advisor
	locks   *repo.KeyedMutex
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEngine creates an Engine. A nil advisor disables advisory suggestions.
func NewEngine(r repo.Repository, advisor Advisor, logger zerolog.Logger) *Engine {
	if advisor == nil {
		advisor = NopAdvisor{}
	}
	return &Engine{
		repo:    r,
		advisor: advisor,
		locks:   repo.NewKeyedMutex(),
		logger:  logger.With().Str("component", "suggest").Logger(),
	}
}

// SetMetrics sets the metrics collector.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Generate tops up a project's suggestions and returns the full list.
// Without metrics the result is empty and nothing is created.
func (e *Engine) Generate(ctx context.Context, projectID string) ([]models.Suggestion, error) {
	unlock := e.locks.Lock(projectID)
	defer unlock()

	in, ok, err := e.input(ctx, projectID, "")
	if err != nil || !ok {
		return nil, err
	}

	proposals := e.propose(ctx, in)
	created := 0
	for _, p := range proposals {
		if created == MaxPerSource {
			break
		}
		s, ok, err := e.create(ctx, projectID, p.Text, p.Rationale, models.SourceAI)
		if err != nil {
			return nil, err
		}
		if ok {
			in.ExcludeTexts[s.Text] = struct{}{}
			created++
		}
	}

	created = 0
	for _, r := range MatchingRules(in.Latest, in.ExcludeTexts) {
		if created == MaxPerSource {
			break
		}
		_, ok, err := e.create(ctx, projectID, r.Text, r.Rationale, models.SourceRule)
		if err != nil {
			return nil, err
		}
		if ok {
			created++
		}
	}

	return e.repo.GetSuggestions(ctx, projectID)
}

// Next creates at most one follow-up suggestion after completedText was closed out.
// The first usable advisory proposal wins, else the first matching rule. It
// returns nil when there is nothing left to suggest.
func (e *Engine) Next(ctx context.Context, projectID, completedText string) (*models.Suggestion, error) {
	unlock := e.locks.Lock(projectID)
	defer unlock()

	in, ok, err := e.input(ctx, projectID, completedText)
	if err != nil || !ok {
		return nil, err
	}

	for _, p := range e.propose(ctx, in) {
		s, ok, err := e.create(ctx, projectID, p.Text, p.Rationale, models.SourceAI)
		if err != nil {
			return nil, err
		}
		if ok {
			return &s, nil
		}
	}
	for _, r := range MatchingRules(in.Latest, in.ExcludeTexts) {
		s, ok, err := e.create(ctx, projectID, r.Text, r.Rationale, models.SourceRule)
		if err != nil {
			return nil, err
		}
		if ok {
			return &s, nil
		}
	}
	return nil, nil
}

// UpdateResult is the outcome of a status change.
type UpdateResult struct {
	Updated models.Suggestion  `json:"updated"`
	Next    *models.Suggestion `json:"next"`
}

// UpdateStatus moves a suggestion to status. When the suggestion is closed out
// and completedText is set, a follow-up is generated.
func (e *Engine) UpdateStatus(ctx context.Context, projectID, id string, status models.SuggestionStatus, completedText string) (UpdateResult, error) {
	if _, err := models.ParseSuggestionStatus(string(status)); err != nil {
		return UpdateResult{}, err
	}

	updated, err := e.applyStatus(ctx, projectID, id, status)
	if err != nil {
		return UpdateResult{}, err
	}
	res := UpdateResult{Updated: updated}

	if status.Completes() && strings.TrimSpace(completedText) != "" {
		next, err := e.Next(ctx, projectID, completedText)
		if err != nil {
			return UpdateResult{}, err
		}
		res.Next = next
	}
	return res, nil
}

// applyStatus checks and writes the transition under the project lock so two
// concurrent changes cannot both start from the same status.
func (e *Engine) applyStatus(ctx context.Context, projectID, id string, status models.SuggestionStatus) (models.Suggestion, error) {
	unlock := e.locks.Lock(projectID)
	defer unlock()

	current, err := e.find(ctx, projectID, id)
	if err != nil {
		return models.Suggestion{}, err
	}
	if !current.Status.CanTransition(status) {
		return models.Suggestion{}, fmt.Errorf("%w: %s -> %s", perrors.ErrInvalidTransition, current.Status, status)
	}
	return e.repo.UpdateSuggestion(ctx, projectID, id, models.SuggestionUpdate{Status: &status})
}

func (e *Engine) find(ctx context.Context, projectID, id string) (models.Suggestion, error) {
	list, err := e.repo.GetSuggestions(ctx, projectID)
	if err != nil {
		return models.Suggestion{}, err
	}
	for _, s := range list {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Suggestion{}, perrors.NotFound("suggestion", id)
}

// input gathers what both generation paths need. ok is false when the project has no metrics.
func (e *Engine) input(ctx context.Context, projectID, completedText string) (AdvisorInput, bool, error) {
	latest, err := e.repo.GetLatestMetrics(ctx, projectID)
	if err != nil {
		return AdvisorInput{}, false, fmt.Errorf("load latest metrics: %w", err)
	}
	if latest == nil {
		return AdvisorInput{}, false, nil
	}

	existing, err := e.repo.GetSuggestions(ctx, projectID)
	if err != nil {
		return AdvisorInput{}, false, fmt.Errorf("load suggestions: %w", err)
	}
	exclude := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		exclude[s.Text] = struct{}{}
	}

	project, err := e.repo.GetProject(ctx, projectID)
	if err != nil {
		return AdvisorInput{}, false, fmt.Errorf("load project: %w", err)
	}
	history, err := e.repo.GetProjectMetrics(ctx, projectID, "")
	if err != nil {
		return AdvisorInput{}, false, fmt.Errorf("load history: %w", err)
	}

	return AdvisorInput{
		Project:       project,
		Latest:        *latest,
		Historical:    history,
		ExcludeTexts:  exclude,
		CompletedText: completedText,
	}, true, nil
}

// propose asks the advisor and drops blank or already known texts.
// Advisor failures degrade to no proposals.
func (e *Engine) propose(ctx context.Context, in AdvisorInput) []Proposal {
	view := make(map[string]struct{}, len(in.ExcludeTexts))
	for t := range in.ExcludeTexts {
		view[t] = struct{}{}
	}
	in.ExcludeTexts = view

	proposals, err := e.advisor.Generate(ctx, in)
	if err != nil {
		e.logger.Warn().Err(err).Msg("advisor failed, continuing with rules only")
		if e.metrics != nil {
			e.metrics.RecordFallback("advisor")
		}
		return nil
	}

	out := make([]Proposal, 0, len(proposals))
	for _, p := range proposals {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			continue
		}
		if _, seen := view[p.Text]; seen {
			continue
		}
		view[p.Text] = struct{}{}
		out = append(out, p)
	}
	return out
}

// create stores one suggestion. ok is false when the text already exists.
func (e *Engine) create(ctx context.Context, projectID, text, rationale string, src models.SuggestionSource) (models.Suggestion, bool, error) {
	s, err := e.repo.CreateSuggestion(ctx, projectID, models.NewSuggestion{
		Text:      text,
		Rationale: rationale,
		Source:    src,
		Status:    models.StatusNew,
	})
	if errors.Is(err, perrors.ErrConflict) {
		e.logger.Debug().Str("project", projectID).Str("text", text).Msg("suggestion already present")
		return models.Suggestion{}, false, nil
	}
	if err != nil {
		return models.Suggestion{}, false, fmt.Errorf("create %s suggestion: %w", src, err)
	}
	if e.metrics != nil {
		e.metrics.RecordSuggestion(string(src))
	}
	e.logger.Info().Str("project", projectID).Str("source", string(src)).Str("id", s.ID).Msg("suggestion created")
	return s, true, nil
}
