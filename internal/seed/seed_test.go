package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/repo"
)

func TestLoad_Default(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	assert.Len(t, f.Projects, 4)
	assert.NotEmpty(t, f.Metrics)
	assert.NotEmpty(t, f.Incidents)

	for _, m := range f.Metrics {
		assert.True(t, m.Flow.CycleTimesOrdered(), "%s/%s cycle times out of order", m.ProjectID, m.Month)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projects:
  - id: shop
    name: Shop
    url: https://shop.example
metrics:
  - projectId: shop
    month: "2025-03"
    perf:
      coreWebVitals: {lcp: 2.4, cls: 0.1, inp: 180}
      accessibility: 0.9
    flow:
      throughputRatio: 0.5
      totalItemsCount: 10
incidents:
  - projectId: shop
    key: S-1
    category: checkout
    status: open
    detectedAt: 2025-03-30T10:00:00Z
`), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Metrics, 1)
	assert.Equal(t, 2.4, f.Metrics[0].Perf.CoreWebVitals.LCP)
	assert.Equal(t, 10, *f.Metrics[0].Flow.TotalItemsCount)
	assert.Equal(t, 30, f.Incidents[0].DetectedAt.Day())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBytes_FailsFast(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"malformed month", "metrics:\n  - projectId: a\n    month: \"2025-3\"\n", perrors.ErrMalformedMonth},
		{"missing project id", "projects:\n  - name: x\n", perrors.ErrInvalidInput},
		{"duplicate project", "projects:\n  - id: a\n  - id: a\n", perrors.ErrInvalidInput},
		{"bad incident status", "incidents:\n  - projectId: a\n    status: pending\n    detectedAt: 2025-01-01T00:00:00Z\n", perrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := LoadBytes([]byte("projects: [oops"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	ctx := context.Background()
	r := repo.NewMemoryRepo()
	require.NoError(t, Apply(ctx, r, f))

	projects, err := r.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 4)

	latest, err := r.GetLatestMetrics(ctx, "swissense")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2025-03", latest.Month.String())
	// three swissense incidents fall between 18 and 31 March, 25 items
	assert.Equal(t, 3, *latest.Flow.QualityIssuesCount)
	assert.Equal(t, 0.88, latest.Flow.QualitySpecial)

	suggestions, err := r.GetSuggestions(ctx, "swissense")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}
