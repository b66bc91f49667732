// Package pagespeed fetches live accessibility scores from the PageSpeed
// Insights API and degrades to the stored score on any failure.
package pagespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/retry"
)

const (
	DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	DefaultTimeout  = 30 * time.Second
)

// Strategy selects the Lighthouse emulation profile.
type Strategy string

const (
	StrategyMobile  Strategy = "MOBILE"
	StrategyDesktop Strategy = "DESKTOP"
)

// ParseStrategy maps a config value to a Strategy, defaulting to mobile.
func ParseStrategy(s string) Strategy {
	if strings.EqualFold(s, string(StrategyDesktop)) {
		return StrategyDesktop
	}
	return StrategyMobile
}

// Source tells where a score came from.
type Source string

const (
	SourcePageSpeed   Source = "pagespeed"
	SourceStored      Source = "stored"
	SourceUnavailable Source = "unavailable"
)

// Details carries request metadata.
type Details struct {
	Strategy Strategy `json:"strategy,omitempty"`
}

// Result is an accessibility score with provenance.
type Result struct {
	Score     float64   `json:"score"`
	Source    Source    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt"`
	Details   *Details  `json:"details,omitempty"`
}

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the PageSpeed Insights API.
type Client struct {
	endpoint   string
	apiKey     string
	strategy   Strategy
	httpClient HTTPClient
	retry      retry.Config
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient creates a client. An empty apiKey makes every fetch return the stored score.
func NewClient(apiKey string, strategy Strategy, logger zerolog.Logger) *Client {
	if strategy == "" {
		strategy = StrategyMobile
	}
	c := &Client{
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		strategy:   strategy,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      retry.DefaultConfig(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("component", "pagespeed").Logger(),
	}
	c.retry.Logger = c.logger
	return c
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) { c.httpClient = hc }

// SetEndpoint overrides the API endpoint (for testing).
func (c *Client) SetEndpoint(endpoint string) { c.endpoint = endpoint }

// SetRetry overrides the retry policy.
func (c *Client) SetRetry(cfg retry.Config) { c.retry = cfg }

// SetMetrics sets the metrics collector.
func (c *Client) SetMetrics(m *metrics.Metrics) { c.metrics = m }

// Enabled reports whether live scores can be fetched.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Fetch returns the live score of pageURL, or fallback with source "stored"
// when no key is configured or the API fails. It never returns an error.
func (c *Client) Fetch(ctx context.Context, pageURL string, fallback float64) Result {
	stored := Result{Score: fallback, Source: SourceStored, FetchedAt: c.now(), Details: &Details{Strategy: c.strategy}}
	if !c.Enabled() {
		return stored
	}

	start := time.Now()
	score, err := retry.Value(ctx, c.retry, func(ctx context.Context) (float64, error) {
		return c.fetch(ctx, pageURL)
	})
	c.observe(err, time.Since(start))
	if err != nil {
		c.logger.Warn().Err(err).Str("url", pageURL).Msg("accessibility score fallback in use")
		if c.metrics != nil {
			c.metrics.RecordFallback("pagespeed")
		}
		return stored
	}
	return Result{Score: score, Source: SourcePageSpeed, FetchedAt: c.now(), Details: &Details{Strategy: c.strategy}}
}

// Unavailable is the result for a project without a URL.
func (c *Client) Unavailable(fallback float64) Result {
	return Result{Score: fallback, Source: SourceUnavailable, FetchedAt: c.now()}
}

type lighthouseResponse struct {
	LighthouseResult struct {
		Categories struct {
			Accessibility struct {
				Score *float64 `json:"score"`
			} `json:"accessibility"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
}

func (c *Client) fetch(ctx context.Context, pageURL string) (float64, error) {
	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("category", "ACCESSIBILITY")
	q.Set("strategy", string(c.strategy))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, perrors.NewAPIError("pagespeed", resp.StatusCode, string(body))
	}

	var lr lighthouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	score := lr.LighthouseResult.Categories.Accessibility.Score
	if score == nil || *score <= 0 {
		return 0, fmt.Errorf("%w: invalid accessibility score in response", perrors.ErrInvalidInput)
	}
	return *score, nil
}

func (c *Client) observe(err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metrics.RecordUpstream("pagespeed", result, d.Seconds())
}
