// Package notify posts the portfolio health digest to Slack.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/pulse/internal/dashboard"
	"github.com/p-blackswan/pulse/internal/format"
	"github.com/p-blackswan/pulse/internal/models"
)

// Poster abstracts the Slack API client for testing.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// PortfolioSource builds the portfolio view. *dashboard.Service satisfies it.
type PortfolioSource interface {
	Portfolio(ctx context.Context) (*dashboard.PortfolioView, error)
}

// Digest posts a health summary of every project to one channel.
type Digest struct {
	api       Poster
	channel   string
	portfolio PortfolioSource
	logger    zerolog.Logger
}

// NewDigest creates a digest poster on top of a bot token.
func NewDigest(botToken, channel string, portfolio PortfolioSource, logger zerolog.Logger, opts ...slack.Option) *Digest {
	return NewDigestWithPoster(slack.New(botToken, opts...), channel, portfolio, logger)
}

// NewDigestWithPoster creates a digest over an existing client.
func NewDigestWithPoster(api Poster, channel string, portfolio PortfolioSource, logger zerolog.Logger) *Digest {
	return &Digest{
		api:       api,
		channel:   channel,
		portfolio: portfolio,
		logger:    logger.With().Str("component", "slack-digest").Logger(),
	}
}

// Send builds the current portfolio and posts it.
func (d *Digest) Send(ctx context.Context) error {
	view, err := d.portfolio.Portfolio(ctx)
	if err != nil {
		return fmt.Errorf("building portfolio: %w", err)
	}
	blocks := DigestBlocks(view)
	_, ts, err := d.api.PostMessageContext(ctx, d.channel,
		slack.MsgOptionText(DigestSummary(view), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}
	d.logger.Info().Str("channel", d.channel).Str("ts", ts).Int("projects", len(view.Projects)).Msg("digest posted")
	return nil
}

var healthEmoji = map[models.HealthStatus]string{
	models.HealthHealthy:  ":large_green_circle:",
	models.HealthAtRisk:   ":large_yellow_circle:",
	models.HealthCritical: ":red_circle:",
}

// DigestSummary is the plain-text fallback of the digest.
func DigestSummary(v *dashboard.PortfolioView) string {
	s := v.Summary
	return fmt.Sprintf("Portfolio health: %d healthy, %d at risk, %d critical (%d projects)",
		s.HealthyProjects, s.AtRiskProjects, s.CriticalProjects, s.TotalProjects)
}

// DigestBlocks renders the digest as Block Kit blocks.
func DigestBlocks(v *dashboard.PortfolioView) []slack.Block {
	s := v.Summary
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "Portfolio health digest", false, false),
		),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Healthy:* %d", s.HealthyProjects), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*At risk:* %d", s.AtRiskProjects), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Critical:* %d", s.CriticalProjects), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Avg LCP:* %s", format.LCP(s.AverageLCP)), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Avg accessibility:* %s", format.Percent(s.AverageAccessibility)), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Median cycle time:* %s", format.Days(s.MedianCycleTime)), false, false),
		}, nil),
		slack.NewDividerBlock(),
	}

	for _, c := range v.Projects {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", projectLine(c), false, false),
			nil, nil,
		))
	}
	return blocks
}

func projectLine(c dashboard.ProjectCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", healthEmoji[c.Health], c.Project.Name)
	if c.Latest == nil {
		b.WriteString(" - no metrics yet")
		return b.String()
	}
	m := c.Latest
	fmt.Fprintf(&b, " (%s)\nLCP %s | CLS %s | INP %s | a11y %s | throughput %s | quality %s",
		format.MonthLabel(m.Month),
		format.LCP(m.Perf.CoreWebVitals.LCP), format.CLS(m.Perf.CoreWebVitals.CLS), format.INP(m.Perf.CoreWebVitals.INP),
		format.Percent(m.Perf.Accessibility), format.Percent(m.Flow.ThroughputRatio), format.Percent(m.Flow.QualitySpecial))
	if c.HealthScore != nil {
		fmt.Fprintf(&b, " | health %s", format.Ratio(*c.HealthScore))
	}
	return b.String()
}
