package models

import (
	"fmt"
	"time"

	perrors "github.com/p-blackswan/pulse/internal/errors"
)

// SuggestionSource tells where a suggestion came from.
type SuggestionSource string

const (
	SourceAI   SuggestionSource = "ai"
	SourceRule SuggestionSource = "rule"
)

// Valid reports whether s is a known source.
func (s SuggestionSource) Valid() bool {
	switch s {
	case SourceAI, SourceRule:
		return true
	default:
		return false
	}
}

// SuggestionStatus is the user-facing state of a suggestion.
type SuggestionStatus string

const (
	StatusNew        SuggestionStatus = "new"
	StatusDone       SuggestionStatus = "done"
	StatusIrrelevant SuggestionStatus = "irrelevant"
)

// ParseSuggestionStatus validates s.
func ParseSuggestionStatus(s string) (SuggestionStatus, error) {
	switch st := SuggestionStatus(s); st {
	case StatusNew, StatusDone, StatusIrrelevant:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown suggestion status %q", perrors.ErrInvalidInput, s)
	}
}

// CanTransition reports whether a suggestion may move from s to next.
// Re-applying the current status is allowed and only refreshes UpdatedAt.
func (s SuggestionStatus) CanTransition(next SuggestionStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusNew:
		return next == StatusDone || next == StatusIrrelevant
	case StatusDone, StatusIrrelevant:
		return next == StatusNew
	default:
		return false
	}
}

// Completes reports whether the status closes a suggestion out.
func (s SuggestionStatus) Completes() bool {
	return s == StatusDone || s == StatusIrrelevant
}

// Suggestion is an improvement recommendation for a project.
type Suggestion struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Rationale string           `json:"rationale"`
	Source    SuggestionSource `json:"source"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NewSuggestion is the caller-supplied part of a suggestion; the repository assigns id and timestamps.
type NewSuggestion struct {
	Text      string
	Rationale string
	Source    SuggestionSource
	Status    SuggestionStatus
}

// SuggestionUpdate is a partial update applied by the repository.
type SuggestionUpdate struct {
	Status *SuggestionStatus
}

// MaxAISuggestions is the number of AI suggestions retained per project.
const MaxAISuggestions = 3
