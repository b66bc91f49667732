package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/repo"
)

type fakeFlow struct {
	flow  *models.FlowMetrics
	key   string
	month models.Month
}

func (f *fakeFlow) FlowMetrics(_ context.Context, key string, month models.Month) *models.FlowMetrics {
	f.key, f.month = key, month
	if f.flow == nil {
		return nil
	}
	c := *f.flow
	return &c
}

type fakeInvalidator struct {
	ids []string
	err error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func freshFlow() *models.FlowMetrics {
	return &models.FlowMetrics{
		ThroughputRatio: 0.6, WIPRatio: 0.4, QualitySpecial: 0.7,
		CycleTimeP50: 3, CycleTimeP85: 7, CycleTimeP95: 12,
		ThroughputCount: models.IntPtr(12), TotalItemsCount: models.IntPtr(20), WIPCount: models.IntPtr(8),
	}
}

func setup(t *testing.T) (*repo.MemoryRepo, *fakeFlow, *fakeInvalidator, *Service) {
	t.Helper()
	ctx := context.Background()
	r := repo.NewMemoryRepo()
	_, err := r.UpsertProject(ctx, models.Project{ID: "diptyque", Name: "Diptyque", JiraKey: "DIP"})
	require.NoError(t, err)
	_, err = r.UpsertProject(ctx, models.Project{ID: "byredo", Name: "Byredo", JiraKey: "BYR"})
	require.NoError(t, err)
	_, err = r.UpsertProject(ctx, models.Project{ID: "elon", Name: "Elon"})
	require.NoError(t, err)

	flow := &fakeFlow{flow: freshFlow()}
	inv := &fakeInvalidator{}
	s := NewService(r, flow, inv, zerolog.Nop())
	s.SetClock(func() time.Time { return time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC) })
	return r, flow, inv, s
}

func TestRefreshFlow_DefaultsMonthAndPerf(t *testing.T) {
	ctx := context.Background()
	r, flow, inv, s := setup(t)
	m := metrics.New()
	s.SetMetrics(m)

	res, err := s.RefreshFlow(ctx, "diptyque", "")
	require.NoError(t, err)
	assert.Equal(t, models.Month("2025-04"), res.Month)
	assert.Equal(t, "DIP", res.JiraKey)
	assert.Equal(t, "DIP", flow.key)
	assert.Equal(t, DefaultPerf("diptyque"), res.Metrics.Perf)
	assert.Equal(t, 0.6, res.Metrics.Flow.ThroughputRatio)
	assert.Equal(t, []string{"diptyque"}, inv.ids)

	stored, err := r.GetProjectMetrics(ctx, "diptyque", "2025-04")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1.9, stored[0].Perf.CoreWebVitals.LCP)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshRunsTotal.WithLabelValues("ok")))
}

func TestRefreshFlow_KeepsExistingPerf(t *testing.T) {
	ctx := context.Background()
	r, _, _, s := setup(t)
	existing := models.ProjectMetrics{
		ProjectID: "byredo", Month: "2025-03",
		Perf: perf(4.2, 0.3, 600, 0.5, 0.6, 0.7),
		Flow: models.FlowMetrics{ThroughputRatio: 0.1},
	}
	_, err := r.UpsertProjectMetrics(ctx, existing)
	require.NoError(t, err)

	res, err := s.RefreshFlow(ctx, "byredo", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, 4.2, res.Metrics.Perf.CoreWebVitals.LCP)
	assert.Equal(t, 0.6, res.Metrics.Flow.ThroughputRatio)
}

func TestRefreshFlow_Errors(t *testing.T) {
	ctx := context.Background()
	r, flow, inv, s := setup(t)

	_, err := s.RefreshFlow(ctx, "elon", "")
	assert.ErrorIs(t, err, perrors.ErrNotFound, "no Jira key")

	_, err = s.RefreshFlow(ctx, "ghost", "")
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	_, err = s.RefreshFlow(ctx, "diptyque", "2025-3")
	assert.ErrorIs(t, err, perrors.ErrMalformedMonth)

	flow.flow = nil
	_, err = s.RefreshFlow(ctx, "diptyque", "2025-03")
	assert.ErrorIs(t, err, perrors.ErrUnavailable)
	ms, err := r.GetProjectMetrics(ctx, "diptyque", "")
	require.NoError(t, err)
	assert.Empty(t, ms, "nothing stored when Jira is down")
	assert.Empty(t, inv.ids)
}

func TestRefreshFlow_InvalidationFailureIsNotFatal(t *testing.T) {
	_, _, inv, s := setup(t)
	inv.err = errors.New("redis down")
	_, err := s.RefreshFlow(context.Background(), "diptyque", "2025-03")
	assert.NoError(t, err)
}

func TestRefreshAll(t *testing.T) {
	_, _, _, s := setup(t)
	sum, err := s.RefreshAll(context.Background(), "2025-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"byredo", "diptyque"}, sum.Refreshed)
	assert.Empty(t, sum.Failed)
}

func TestRefreshAll_CollectsFailures(t *testing.T) {
	_, flow, _, s := setup(t)
	flow.flow = nil
	sum, err := s.RefreshAll(context.Background(), "2025-03")
	require.NoError(t, err)
	assert.Empty(t, sum.Refreshed)
	assert.Len(t, sum.Failed, 2)
}

func TestDefaultPerf(t *testing.T) {
	assert.Equal(t, 3.2, DefaultPerf("swissense").CoreWebVitals.LCP)
	assert.Equal(t, 0.88, DefaultPerf("byredo").Accessibility)
	unknown := DefaultPerf("acme")
	assert.Equal(t, 2.5, unknown.CoreWebVitals.LCP)
	assert.Equal(t, 0.85, unknown.BestPractices)
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(time.Second, zerolog.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 10ms", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("disabled", "", func(context.Context) error { return nil }))
	assert.Error(t, s.Add("bad", "not a spec", func(context.Context) error { return nil }))
	assert.Equal(t, 1, s.Len())

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
