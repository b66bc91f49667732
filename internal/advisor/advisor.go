// Package advisor asks a language model for improvement suggestions based on
// a project's latest and historical metrics.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/format"
	"github.com/p-blackswan/pulse/internal/llm"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/scoring"
	"github.com/p-blackswan/pulse/internal/suggest"
)

const (
	DefaultTimeout = 20 * time.Second
	maxProposals   = 3
	historyMonths  = 6
)

var systemPrompt = `You advise an e-commerce engineering team on web performance, accessibility and delivery flow.
Given a project's metrics, propose up to 3 concrete, actionable improvements.

Respond ONLY with valid JSON (no markdown, no explanation):
{
  "suggestions": [
    {"text": "<imperative one-line action>", "rationale": "<one or two sentences tying it to the metrics>"}
  ]
}

Rules:
- Never repeat or rephrase a suggestion listed under "Already suggested".
- Prefer the weakest metrics first.
- Keep each text under 120 characters.`

// Advisor implements suggest.Advisor on top of an llm.Provider.
type Advisor struct {
	provider llm.Provider
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates an Advisor. A non-positive timeout uses DefaultTimeout.
func New(provider llm.Provider, timeout time.Duration, logger zerolog.Logger) *Advisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Advisor{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With().Str("component", "advisor").Logger(),
	}
}

// SetMetrics sets the metrics collector.
func (a *Advisor) SetMetrics(m *metrics.Metrics) { a.metrics = m }

var _ suggest.Advisor = (*Advisor)(nil)

// Generate returns at most three proposals. Errors are returned unchanged so
// the suggestion engine can fall back to rules.
func (a *Advisor) Generate(ctx context.Context, in suggest.AdvisorInput) ([]suggest.Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{llm.UserMessage(BuildPrompt(in))},
		MaxTokens:    800,
	})
	a.observe(err, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: advisor: %v", perrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("advisor: llm call: %w", err)
	}

	proposals, err := ParseProposals(resp.Text)
	if err != nil {
		a.logger.Warn().Err(err).Str("text", truncate(resp.Text, 200)).Msg("unparseable advisor answer")
		return nil, err
	}
	if len(proposals) > maxProposals {
		proposals = proposals[:maxProposals]
	}
	a.logger.Debug().Int("proposals", len(proposals)).Str("model", a.provider.ModelID()).Msg("advisor answered")
	return proposals, nil
}

func (a *Advisor) observe(err error, d time.Duration) {
	if a.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	a.metrics.RecordUpstream("advisor", result, d.Seconds())
}

// ParseProposals decodes the model answer, tolerating a fenced code block or
// prose around the JSON object.
func ParseProposals(text string) ([]suggest.Proposal, error) {
	body := strings.TrimSpace(text)
	if i := strings.Index(body, "{"); i >= 0 {
		if j := strings.LastIndex(body, "}"); j > i {
			body = body[i : j+1]
		}
	}
	var parsed struct {
		Suggestions []suggest.Proposal `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("%w: advisor answer is not JSON: %v", perrors.ErrInvalidInput, err)
	}
	out := make([]suggest.Proposal, 0, len(parsed.Suggestions))
	for _, p := range parsed.Suggestions {
		p.Text = strings.TrimSpace(p.Text)
		p.Rationale = strings.TrimSpace(p.Rationale)
		if p.Text != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// BuildPrompt renders the project context sent to the model.
func BuildPrompt(in suggest.AdvisorInput) string {
	var b strings.Builder
	if in.Project != nil {
		fmt.Fprintf(&b, "Project: %s (%s)\n", in.Project.Name, in.Project.URL)
		if len(in.Project.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(in.Project.Tags, ", "))
		}
	}

	m := in.Latest
	cwv := m.Perf.CoreWebVitals
	fmt.Fprintf(&b, "\nLatest month: %s\n", format.MonthLabel(m.Month))
	fmt.Fprintf(&b, "- Core Web Vitals: LCP %s, CLS %s, INP %s (score %.0f/100)\n",
		format.LCP(cwv.LCP), format.CLS(cwv.CLS), format.INP(cwv.INP), scoring.CWVScore(cwv))
	fmt.Fprintf(&b, "- Accessibility %s, best practices %s, SEO %s\n",
		format.Percent(m.Perf.Accessibility), format.Percent(m.Perf.BestPractices), format.Percent(m.Perf.SEO))
	fmt.Fprintf(&b, "- Throughput %s, WIP %s, quality %s (%s)\n",
		format.Percent(m.Flow.ThroughputRatio), format.Percent(m.Flow.WIPRatio),
		format.Percent(m.Flow.QualitySpecial), format.QualityWindow(m.Flow))
	fmt.Fprintf(&b, "- Cycle time P50 %s, P85 %s, P95 %s\n",
		format.Days(m.Flow.CycleTimeP50), format.Days(m.Flow.CycleTimeP85), format.Days(m.Flow.CycleTimeP95))
	fmt.Fprintf(&b, "- Health score %.2f\n", scoring.HealthScore(m))

	hist := append([]models.ProjectMetrics(nil), in.Historical...)
	sort.Slice(hist, func(i, j int) bool { return hist[i].Month < hist[j].Month })
	if len(hist) > historyMonths {
		hist = hist[len(hist)-historyMonths:]
	}
	if len(hist) > 0 {
		b.WriteString("\nHistory:\n")
		for _, h := range hist {
			fmt.Fprintf(&b, "- %s: LCP %s, accessibility %s, throughput %s, quality %s\n",
				h.Month, format.LCP(h.Perf.CoreWebVitals.LCP), format.Percent(h.Perf.Accessibility),
				format.Percent(h.Flow.ThroughputRatio), format.Percent(h.Flow.QualitySpecial))
		}
	}

	if in.CompletedText != "" {
		fmt.Fprintf(&b, "\nThe team just completed: %q. Suggest the natural next step.\n", in.CompletedText)
	}

	if len(in.ExcludeTexts) > 0 {
		texts := make([]string, 0, len(in.ExcludeTexts))
		for t := range in.ExcludeTexts {
			texts = append(texts, t)
		}
		sort.Strings(texts)
		b.WriteString("\nAlready suggested:\n")
		for _, t := range texts {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return b.String()
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
