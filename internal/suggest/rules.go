package suggest

import (
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/scoring"
)

// Rule is one entry of the fixed rule table.
type Rule struct {
	ID        string
	Text      string
	Rationale string
	Applies   func(m models.ProjectMetrics) bool
}

func cwvBelow(limit float64) func(models.ProjectMetrics) bool {
	return func(m models.ProjectMetrics) bool {
		return scoring.CWVScore(m.Perf.CoreWebVitals) < limit
	}
}

// Rules is evaluated top to bottom. Order and wording are part of the contract:
// texts double as per-project dedup keys.
var Rules = []Rule{
	{
		ID:        "cwv-optimization",
		Applies:   cwvBelow(75),
		Text:      "Optimize Core Web Vitals: reduce LCP, minimize layout shifts, improve responsiveness",
		Rationale: "Core Web Vitals score is below 75. Focus on image optimization, layout stability, and interaction responsiveness.",
	},
	{
		ID:        "a11y-improvements",
		Applies:   func(m models.ProjectMetrics) bool { return m.Perf.Accessibility < 0.9 },
		Text:      "Add landmarks, fix contrast, label interactive elements",
		Rationale: "Accessibility score is below 90%. Improving accessibility makes your site usable by everyone.",
	},
	{
		ID:        "best-practices",
		Applies:   func(m models.ProjectMetrics) bool { return m.Perf.BestPractices < 0.9 },
		Text:      "Audit third-party scripts, upgrade deps, enable HTTPS security headers",
		Rationale: "Best practices score is below 90%. Following web standards improves security and reliability.",
	},
	{
		ID:        "seo-improvements",
		Applies:   func(m models.ProjectMetrics) bool { return m.Perf.SEO < 0.9 },
		Text:      "Improve metadata, structured data, fix link texts",
		Rationale: "SEO score is below 90%. Better SEO increases discoverability and search rankings.",
	},
	{
		ID: "throughput-wip",
		Applies: func(m models.ProjectMetrics) bool {
			return m.Flow.ThroughputRatio < 0.5 || m.Flow.WIPRatio > 0.5
		},
		Text:      "Limit WIP, smaller batches, enforce WIP policies",
		Rationale: "Low throughput or high WIP ratio indicates workflow inefficiencies. Limiting work in progress improves flow.",
	},
	{
		ID:        "cycle-time",
		Applies:   func(m models.ProjectMetrics) bool { return m.Flow.CycleTimeP85 > 7 },
		Text:      "Split work, reduce handoffs, add QA shift-left",
		Rationale: "85th percentile cycle time exceeds 7 days. Breaking down work and reducing dependencies speeds delivery.",
	},
	{
		ID:        "quality-gates",
		Applies:   func(m models.ProjectMetrics) bool { return m.Flow.QualitySpecial < 0.7 },
		Text:      "Add QA gates, increase automated checks",
		Rationale: "Quality metrics are below 70%. Adding quality gates and automation prevents defects reaching production.",
	},
	{
		ID:        "image-modernization",
		Applies:   cwvBelow(60),
		Text:      "Implement next-gen image formats (WebP, AVIF) with fallbacks",
		Rationale: "Poor Core Web Vitals often correlate with unoptimized images. Modern formats reduce bandwidth by 30-50%.",
	},
	{
		ID:        "code-splitting",
		Applies:   cwvBelow(60),
		Text:      "Implement dynamic imports and code splitting for better bundle sizes",
		Rationale: "Large JavaScript bundles slow initial page loads and hurt Core Web Vitals. Code splitting loads only necessary code upfront.",
	},
	{
		ID:        "caching-strategy",
		Applies:   cwvBelow(70),
		Text:      "Implement aggressive caching strategies for static assets",
		Rationale: "Caching reduces server load and improves repeat visit performance significantly.",
	},
	{
		ID:        "monitoring-alerts",
		Applies:   func(m models.ProjectMetrics) bool { return m.Flow.QualitySpecial < 0.8 },
		Text:      "Set up performance monitoring and alerts for core metrics",
		Rationale: "Proactive monitoring catches issues before they impact users and helps maintain quality standards.",
	},
	{
		ID:        "workflow-automation",
		Applies:   func(m models.ProjectMetrics) bool { return m.Flow.CycleTimeP50 > 5 },
		Text:      "Automate testing and deployment pipelines to reduce manual overhead",
		Rationale: "Manual processes introduce delays and errors. Automation accelerates delivery and improves consistency.",
	},
}

// MatchingRules returns the rules that apply to m and whose text is not excluded, in table order.
func MatchingRules(m models.ProjectMetrics, exclude map[string]struct{}) []Rule {
	var out []Rule
	for _, r := range Rules {
		if _, seen := exclude[r.Text]; seen {
			continue
		}
		if r.Applies(m) {
			out = append(out, r)
		}
	}
	return out
}
