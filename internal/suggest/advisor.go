package suggest

import (
	"context"

	"github.com/p-blackswan/pulse/internal/models"
)

// AdvisorInput is what an advisory generator sees for one project.
type AdvisorInput struct {
	Project    *models.Project
	Latest     models.ProjectMetrics
	Historical []models.ProjectMetrics
	// ExcludeTexts holds every text the project already has. Advisors must not mutate it.
	ExcludeTexts  map[string]struct{}
	CompletedText string
}

// Proposal is one advisory suggestion before it is stored.
type Proposal struct {
	Text      string `json:"text"`
	Rationale string `json:"rationale"`
}

// Advisor produces free-form suggestions. Implementations bound their own wait;
// an error is treated like an empty answer.
type Advisor interface {
	Generate(ctx context.Context, in AdvisorInput) ([]Proposal, error)
}

// NopAdvisor never proposes anything. It is used when no LLM is configured.
type NopAdvisor struct{}

func (NopAdvisor) Generate(context.Context, AdvisorInput) ([]Proposal, error) { return nil, nil }

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, in AdvisorInput) ([]Proposal, error)

func (f AdvisorFunc) Generate(ctx context.Context, in AdvisorInput) ([]Proposal, error) {
	return f(ctx, in)
}
