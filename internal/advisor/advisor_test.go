package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/llm"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/suggest"
)

type fakeProvider struct {
	text  string
	err   error
	delay time.Duration
	req   llm.CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.req = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text, StopReason: llm.StopReasonEndTurn}, nil
}

func (f *fakeProvider) ModelID() string { return "fake" }

func input() suggest.AdvisorInput {
	return suggest.AdvisorInput{
		Project: &models.Project{ID: "diptyque", Name: "Diptyque", URL: "https://www.diptyqueparis.com", Tags: []string{"fragrance"}},
		Latest: models.ProjectMetrics{
			ProjectID: "diptyque",
			Month:     "2025-03",
			Perf: models.PerfMetrics{
				CoreWebVitals: models.CoreWebVitals{LCP: 3.1, CLS: 0.12, INP: 240},
				Accessibility: 0.82, BestPractices: 0.9, SEO: 0.95,
			},
			Flow: models.FlowMetrics{ThroughputRatio: 0.45, WIPRatio: 0.55, QualitySpecial: 0.8, CycleTimeP50: 4, CycleTimeP85: 9, CycleTimeP95: 14},
		},
		Historical: []models.ProjectMetrics{
			{Month: "2025-02", Perf: models.PerfMetrics{CoreWebVitals: models.CoreWebVitals{LCP: 2.9}}},
			{Month: "2025-01", Perf: models.PerfMetrics{CoreWebVitals: models.CoreWebVitals{LCP: 2.7}}},
		},
		ExcludeTexts:  map[string]struct{}{"Compress hero images": {}},
		CompletedText: "Compress hero images",
	}
}

func TestGenerate(t *testing.T) {
	p := &fakeProvider{text: "```json\n{\"suggestions\":[" +
		"{\"text\":\"Preload the LCP image\",\"rationale\":\"LCP is 3.1s.\"}," +
		"{\"text\":\"  \",\"rationale\":\"blank\"}," +
		"{\"text\":\"Limit WIP to 5 items\",\"rationale\":\"WIP is 55%.\"}," +
		"{\"text\":\"Add skip links\",\"rationale\":\"a11y\"}," +
		"{\"text\":\"Fourth\",\"rationale\":\"cut\"}]}\n```"}
	a := New(p, time.Second, zerolog.Nop())

	got, err := a.Generate(context.Background(), input())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Preload the LCP image", got[0].Text)
	assert.Equal(t, "Limit WIP to 5 items", got[1].Text)
	assert.Equal(t, "Add skip links", got[2].Text)

	prompt := p.req.Messages[0].Content
	assert.Contains(t, prompt, "Diptyque")
	assert.Contains(t, prompt, "March 2025")
	assert.Contains(t, prompt, "LCP 3.1s")
	assert.Contains(t, prompt, "Already suggested:\n- Compress hero images")
	assert.Contains(t, prompt, "just completed")
	assert.Equal(t, systemPrompt, p.req.SystemPrompt)
}

func TestGenerate_ProviderError(t *testing.T) {
	a := New(&fakeProvider{err: perrors.NewAPIError("anthropic", 500, "boom")}, time.Second, zerolog.Nop())
	_, err := a.Generate(context.Background(), input())
	var apiErr *perrors.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestGenerate_Timeout(t *testing.T) {
	a := New(&fakeProvider{delay: time.Second}, 10*time.Millisecond, zerolog.Nop())
	_, err := a.Generate(context.Background(), input())
	assert.ErrorIs(t, err, perrors.ErrTimeout)
}

func TestGenerate_Unparseable(t *testing.T) {
	a := New(&fakeProvider{text: "I think you should compress images."}, time.Second, zerolog.Nop())
	_, err := a.Generate(context.Background(), input())
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestTruncate_KeepsWholeRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))
	got := truncate(strings.Repeat("é", 300), 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 200, utf8.RuneCountInString(got))
}

func TestBuildPrompt_HistorySortedAndBounded(t *testing.T) {
	in := input()
	in.Historical = nil
	for _, m := range []models.Month{"2024-09", "2024-10", "2024-11", "2024-12", "2025-01", "2025-02", "2025-03", "2024-08"} {
		in.Historical = append(in.Historical, models.ProjectMetrics{Month: m})
	}
	prompt := BuildPrompt(in)
	assert.NotContains(t, prompt, "2024-08:")
	assert.NotContains(t, prompt, "2024-09:")
	assert.Contains(t, prompt, "2024-10:")
	assert.Less(t, strings.Index(prompt, "2024-10:"), strings.Index(prompt, "2025-03:"))
}
