// Package crux fetches per-device Core Web Vitals (Chrome UX Report p75 values)
// from the performance webhook. One upstream call returns every project; the
// payload is cached and upstream calls are rate limited.
package crux

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/p-blackswan/pulse/internal/cache"
	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/retry"
)

const (
	DefaultCacheTTL    = 10 * time.Minute
	DefaultMinInterval = 30 * time.Second
	DefaultTimeout     = 15 * time.Second

	allKey = "all"
)

// Default device vitals used when the webhook has nothing for a form factor.
var (
	DefaultDesktop = models.CoreWebVitals{LCP: 2.2, CLS: 0.08, INP: 180}
	DefaultMobile  = models.CoreWebVitals{LCP: 2.8, CLS: 0.12, INP: 220}
	// unparsableVitals replaces a cruxData blob that cannot be read.
	unparsableVitals = models.CoreWebVitals{LCP: 2.5, CLS: 0.1, INP: 200}
)

// webhookKeys maps project ids to the keys the webhook reports them under.
var webhookKeys = map[string]string{
	"diptyque":  "diptyque",
	"byredo":    "byredo",
	"swissense": "swisssense",
	"elon":      "elon",
}

// WebhookKey returns the webhook key of a project. Unknown ids map to themselves.
func WebhookKey(projectID string) string {
	if k, ok := webhookKeys[projectID]; ok {
		return k
	}
	return projectID
}

// Item is one row of the webhook response.
type Item struct {
	Key        string `json:"key"`
	FormFactor string `json:"formFactor"`
	FirstDate  string `json:"firstDate"`
	LastDate   string `json:"lastDate"`
	CruxData   string `json:"cruxData"`
}

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher reads device vitals from the webhook.
type Fetcher struct {
	url         string
	httpClient  HTTPClient
	store       cache.Store
	ttl         time.Duration
	minInterval time.Duration
	retry       retry.Config
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	mu          sync.Mutex
	lastRequest time.Time
	stale       []Item
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(hc HTTPClient) Option { return func(f *Fetcher) { f.httpClient = hc } }

// WithCacheTTL overrides how long the webhook payload is reused.
func WithCacheTTL(d time.Duration) Option { return func(f *Fetcher) { f.ttl = d } }

// WithMinInterval overrides the minimum spacing between upstream requests.
func WithMinInterval(d time.Duration) Option { return func(f *Fetcher) { f.minInterval = d } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(f *Fetcher) { f.now = now } }

// WithRetry overrides the retry policy.
func WithRetry(cfg retry.Config) Option { return func(f *Fetcher) { f.retry = cfg } }

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

// NewFetcher creates a Fetcher for the webhook at url. A nil store gets a private memory cache.
func NewFetcher(url string, store cache.Store, logger zerolog.Logger, opts ...Option) *Fetcher {
	if store == nil {
		store = cache.NewMemoryStore(64)
	}
	f := &Fetcher{
		url:         url,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		store:       store,
		ttl:         DefaultCacheTTL,
		minInterval: DefaultMinInterval,
		retry:       retry.DefaultConfig(),
		now:         time.Now,
		logger:      logger.With().Str("component", "crux").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.retry.Logger = f.logger
	return f
}

// Vitals returns device vitals for a project. It never fails: when the webhook
// is unavailable or has no rows for the project, the defaults are returned.
func (f *Fetcher) Vitals(ctx context.Context, projectID string) models.DeviceVitals {
	key := WebhookKey(projectID)

	if raw, ok, err := f.store.Get(ctx, projectKey(key)); err == nil && ok {
		var dv models.DeviceVitals
		if json.Unmarshal(raw, &dv) == nil {
			return dv
		}
	}

	items, err := f.items(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Str("project", projectID).Msg("performance webhook unavailable, using defaults")
		f.fallback()
		return Defaults()
	}

	dv, found := Extract(items, key)
	if !found {
		f.logger.Warn().Str("project", projectID).Str("key", key).Msg("no webhook rows for project, using defaults")
		return Defaults()
	}
	if raw, err := json.Marshal(dv); err == nil {
		_ = f.store.Set(ctx, projectKey(key), raw, f.ttl)
	}
	return dv
}

// All returns device vitals for every project the webhook reports, keyed by
// webhook key. The map is empty when the webhook is unavailable.
func (f *Fetcher) All(ctx context.Context) map[string]models.DeviceVitals {
	out := make(map[string]models.DeviceVitals)
	items, err := f.items(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("performance webhook unavailable")
		f.fallback()
		return out
	}
	for _, it := range items {
		if _, done := out[it.Key]; done {
			continue
		}
		dv, _ := Extract(items, it.Key)
		out[it.Key] = dv
		if raw, err := json.Marshal(dv); err == nil {
			_ = f.store.Set(ctx, projectKey(it.Key), raw, f.ttl)
		}
	}
	return out
}

// Invalidate drops the cached vitals of one project and the shared payload.
func (f *Fetcher) Invalidate(ctx context.Context, projectID string) error {
	if err := f.store.Delete(ctx, projectKey(WebhookKey(projectID))); err != nil {
		return err
	}
	return f.store.Delete(ctx, allKey)
}

// InvalidateAll drops everything cached by the fetcher.
func (f *Fetcher) InvalidateAll(ctx context.Context) error {
	return f.store.Clear(ctx)
}

// items returns the webhook payload from cache, or from upstream when allowed.
func (f *Fetcher) items(ctx context.Context) ([]Item, error) {
	if raw, ok, err := f.store.Get(ctx, allKey); err == nil && ok {
		var items []Item
		if json.Unmarshal(raw, &items) == nil {
			return items, nil
		}
	}

	f.mu.Lock()
	now := f.now()
	if !f.lastRequest.IsZero() && now.Sub(f.lastRequest) < f.minInterval {
		stale := f.stale
		f.mu.Unlock()
		if stale != nil {
			f.logger.Debug().Msg("rate limited, serving last payload")
			return stale, nil
		}
		return nil, fmt.Errorf("%w: performance webhook rate limited", perrors.ErrRateLimit)
	}
	f.lastRequest = now
	f.mu.Unlock()

	start := time.Now()
	items, err := retry.Value(ctx, f.retry, f.fetch)
	f.observe(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.stale = items
	f.mu.Unlock()

	if raw, err := json.Marshal(items); err == nil {
		if err := f.store.Set(ctx, allKey, raw, f.ttl); err != nil {
			f.logger.Warn().Err(err).Msg("caching webhook payload failed")
		}
	}
	f.logger.Info().Int("items", len(items)).Msg("fetched performance webhook")
	return items, nil
}

func (f *Fetcher) fetch(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, perrors.NewAPIError("crux", resp.StatusCode, string(body))
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return items, nil
}

func (f *Fetcher) observe(err error, d time.Duration) {
	if f.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	f.metrics.RecordUpstream("crux", result, d.Seconds())
}

func (f *Fetcher) fallback() {
	if f.metrics != nil {
		f.metrics.RecordFallback("crux")
	}
}

func projectKey(key string) string { return "project:" + key }

// Defaults returns the fallback vitals for both devices.
func Defaults() models.DeviceVitals {
	return models.DeviceVitals{Desktop: DefaultDesktop, Mobile: DefaultMobile}
}

// Extract builds device vitals for key from webhook rows. found is false when no row matches.
func Extract(items []Item, key string) (models.DeviceVitals, bool) {
	dv := Defaults()
	found := false
	var haveDesktop, haveMobile bool
	for _, it := range items {
		if it.Key != key {
			continue
		}
		found = true
		switch it.FormFactor {
		case "DESKTOP":
			if !haveDesktop {
				dv.Desktop = ParseCruxData(it.CruxData)
				haveDesktop = true
			}
		case "PHONE":
			if !haveMobile {
				dv.Mobile = ParseCruxData(it.CruxData)
				haveMobile = true
			}
		}
	}
	return dv, found
}

type cruxRecord struct {
	Record struct {
		Metrics map[string]struct {
			Percentiles struct {
				P75 any `json:"p75"`
			} `json:"percentiles"`
		} `json:"metrics"`
	} `json:"record"`
}

// ParseCruxData reads the p75 values out of a CrUX record blob. LCP is converted
// from ms to seconds and rounded to 2 decimals, CLS to 3 decimals, INP to an integer.
// Missing values take 2500 ms / 0.1 / 200 ms; an unreadable blob yields 2.5 / 0.1 / 200.
func ParseCruxData(blob string) models.CoreWebVitals {
	var rec cruxRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil || len(rec.Record.Metrics) == 0 {
		return unparsableVitals
	}
	p75 := func(metric string, def float64) float64 {
		m, ok := rec.Record.Metrics[metric]
		if !ok {
			return def
		}
		v, err := cast.ToFloat64E(m.Percentiles.P75)
		if err != nil || v == 0 {
			return def
		}
		return v
	}

	lcp := p75("largest_contentful_paint", 2500) / 1000
	cls := p75("cumulative_layout_shift", 0.1)
	inp := p75("interaction_to_next_paint", 200)

	return models.CoreWebVitals{
		LCP: decimal.NewFromFloat(lcp).Round(2).InexactFloat64(),
		CLS: decimal.NewFromFloat(cls).Round(3).InexactFloat64(),
		INP: decimal.NewFromFloat(inp).Round(0).InexactFloat64(),
	}
}
