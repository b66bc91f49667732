package suggest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/pulse/internal/models"
)

func TestVisible(t *testing.T) {
	at := func(min int) time.Time { return time.Date(2025, 4, 1, 10, min, 0, 0, time.UTC) }
	list := []models.Suggestion{
		{ID: "r1", Source: models.SourceRule, CreatedAt: at(1)},
		{ID: "r2", Source: models.SourceRule, CreatedAt: at(2)},
		{ID: "a1", Source: models.SourceAI, CreatedAt: at(3)},
		{ID: "r3", Source: models.SourceRule, CreatedAt: at(4)},
		{ID: "a2", Source: models.SourceAI, CreatedAt: at(5)},
	}

	ids := func(ss []models.Suggestion) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}

	assert.Equal(t, []string{"a2", "a1", "r3"}, ids(Visible(list, 3)))
	assert.Equal(t, []string{"a2"}, ids(Visible(list, 1)))
	assert.Empty(t, Visible(nil, 3))

	onlyRules := list[:2]
	assert.Equal(t, []string{"r2", "r1"}, ids(Visible(onlyRules, 3)))
	assert.Equal(t, "r1", list[0].ID, "input order is untouched")
}

func TestVisible_EqualTimestampsPreferLaterInsert(t *testing.T) {
	at := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	list := []models.Suggestion{
		{ID: "a1", Source: models.SourceAI, CreatedAt: at},
		{ID: "a2", Source: models.SourceAI, CreatedAt: at},
	}
	got := Visible(list, 3)
	assert.Equal(t, "a2", got[0].ID)
}
