package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP API
	HTTPListenAddr string `envconfig:"HTTP_LISTEN_ADDR" default:":8080"`
	APIAuthMode    string `envconfig:"API_AUTH_MODE" default:"none"` // none, api-key or jwt
	APIKey         string `envconfig:"API_KEY"`
	APIJWTSecret   string `envconfig:"API_JWT_SECRET"`
	APICORSOrigins string `envconfig:"API_CORS_ORIGINS"`

	APIRateLimitRPS   int `envconfig:"API_RATE_LIMIT_RPS" default:"50"`
	APIRateLimitBurst int `envconfig:"API_RATE_LIMIT_BURST" default:"100"`

	// Storage
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"` // memory or sqlite
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"pulse.db"`
	SeedPath      string `envconfig:"SEED_PATH"` // empty loads the embedded fixtures

	// Jira (optional, flow refresh is disabled without it)
	JiraBaseURL  string `envconfig:"JIRA_BASE_URL"`
	JiraAPIEmail string `envconfig:"JIRA_API_EMAIL"` // empty selects bearer (PAT) auth
	JiraAPIToken string `envconfig:"JIRA_API_TOKEN"`

	// PageSpeed Insights
	PageSpeedAPIKey   string `envconfig:"PAGESPEED_API_KEY"`
	PageSpeedStrategy string `envconfig:"PAGESPEED_STRATEGY" default:"MOBILE"`

	// CrUX performance webhook
	CruxWebhookURL  string        `envconfig:"CRUX_WEBHOOK_URL"`
	CruxCacheTTL    time.Duration `envconfig:"CRUX_CACHE_TTL" default:"10m"`
	CruxMinInterval time.Duration `envconfig:"CRUX_MIN_INTERVAL" default:"30s"`

	// Redis second cache tier (optional)
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Advisory generator
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `envconfig:"ANTHROPIC_MODEL"`
	AdvisorTimeout  time.Duration `envconfig:"ADVISOR_TIMEOUT" default:"20s"`

	// Slack digest
	SlackBotToken      string `envconfig:"SLACK_BOT_TOKEN"`
	SlackDigestChannel string `envconfig:"SLACK_DIGEST_CHANNEL"`

	// Scheduling. An empty schedule disables the job.
	RefreshSchedule        string        `envconfig:"REFRESH_SCHEDULE" default:"0 3 * * *"`
	DigestSchedule         string        `envconfig:"DIGEST_SCHEDULE" default:"0 8 * * 1"`
	RetentionSchedule      string        `envconfig:"RETENTION_SCHEDULE" default:"30 4 * * *"`
	MetricsRetentionMonths int           `envconfig:"METRICS_RETENTION_MONTHS" default:"0"` // 0 keeps everything
	JobTimeout             time.Duration `envconfig:"JOB_TIMEOUT" default:"10m"`

	// Dashboard
	FocusYear            string        `envconfig:"FOCUS_YEAR" default:"2025"`
	PortfolioConcurrency int           `envconfig:"PORTFOLIO_CONCURRENCY" default:"8"`
	UpstreamTimeout      time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`
}

// JiraEnabled returns true if Jira base URL and token are configured.
func (c *Config) JiraEnabled() bool {
	return c.JiraBaseURL != "" && c.JiraAPIToken != ""
}

// PageSpeedEnabled returns true if a PageSpeed API key is configured.
func (c *Config) PageSpeedEnabled() bool {
	return c.PageSpeedAPIKey != ""
}

// CruxEnabled returns true if the CrUX webhook is configured.
func (c *Config) CruxEnabled() bool {
	return c.CruxWebhookURL != ""
}

// AdvisorEnabled returns true if the LLM advisor can be built.
func (c *Config) AdvisorEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// RedisEnabled returns true if a redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// SlackEnabled returns true if the digest can be posted.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackDigestChannel != ""
}

// CORSOriginList returns the parsed list of allowed origins, or nil.
func (c *Config) CORSOriginList() []string {
	if c.APICORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.APICORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q, expected memory or sqlite", c.StorageDriver)
	}
	switch c.APIAuthMode {
	case "none":
	case "api-key":
		if c.APIKey == "" {
			return fmt.Errorf("API_KEY is required when API_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.APIJWTSecret == "" {
			return fmt.Errorf("API_JWT_SECRET is required when API_AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("invalid API_AUTH_MODE %q, expected none, api-key or jwt", c.APIAuthMode)
	}
	switch strings.ToUpper(c.PageSpeedStrategy) {
	case "MOBILE", "DESKTOP":
	default:
		return fmt.Errorf("invalid PAGESPEED_STRATEGY %q", c.PageSpeedStrategy)
	}
	if c.MetricsRetentionMonths < 0 {
		return fmt.Errorf("METRICS_RETENTION_MONTHS must not be negative")
	}
	if c.PortfolioConcurrency < 1 {
		return fmt.Errorf("PORTFOLIO_CONCURRENCY must be at least 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
