package suggest

import (
	"sort"

	"github.com/p-blackswan/pulse/internal/models"
)

// Visible returns the read-time view of a suggestion list: newest first, up to
// limit AI suggestions, then filled with rule suggestions up to limit in total.
func Visible(list []models.Suggestion, limit int) []models.Suggestion {
	// reversed first so equal timestamps keep the later insert in front
	sorted := make([]models.Suggestion, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		sorted = append(sorted, list[i])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	out := make([]models.Suggestion, 0, limit)
	for _, s := range sorted {
		if len(out) == limit {
			return out
		}
		if s.Source == models.SourceAI {
			out = append(out, s)
		}
	}
	for _, s := range sorted {
		if len(out) == limit {
			break
		}
		if s.Source == models.SourceRule {
			out = append(out, s)
		}
	}
	return out
}
