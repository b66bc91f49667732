// Package config tests.
package config

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Config reads for the duration of the test so
// results do not depend on the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	typ := reflect.TypeOf(Config{})
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("envconfig")
		if key == "" {
			continue
		}
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadWithPrefix("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPListenAddr)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, "none", cfg.APIAuthMode)
	assert.Equal(t, 10*time.Minute, cfg.CruxCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.CruxMinInterval)
	assert.Equal(t, 20*time.Second, cfg.AdvisorTimeout)
	assert.Equal(t, "2025", cfg.FocusYear)
	assert.Equal(t, 8, cfg.PortfolioConcurrency)

	assert.False(t, cfg.JiraEnabled())
	assert.False(t, cfg.PageSpeedEnabled())
	assert.False(t, cfg.CruxEnabled())
	assert.False(t, cfg.AdvisorEnabled())
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.SlackEnabled())
	assert.Nil(t, cfg.CORSOriginList())
}

func TestLoad_Integrations(t *testing.T) {
	clearEnv(t)
	t.Setenv("JIRA_BASE_URL", "https://test.atlassian.net")
	t.Setenv("JIRA_API_TOKEN", "tok")
	t.Setenv("PAGESPEED_API_KEY", "psi")
	t.Setenv("CRUX_WEBHOOK_URL", "https://hooks.example.com/crux")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_DIGEST_CHANNEL", "#web-health")
	t.Setenv("API_CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CRUX_CACHE_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.JiraEnabled())
	assert.True(t, cfg.PageSpeedEnabled())
	assert.True(t, cfg.CruxEnabled())
	assert.True(t, cfg.AdvisorEnabled())
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.SlackEnabled())
	assert.Equal(t, 5*time.Minute, cfg.CruxCacheTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOriginList())
}

func TestLoad_SlackNeedsChannel(t *testing.T) {
	clearEnv(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.SlackEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		ok   bool
	}{
		{"sqlite driver", map[string]string{"STORAGE_DRIVER": "sqlite"}, true},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "postgres"}, false},
		{"api-key without key", map[string]string{"API_AUTH_MODE": "api-key"}, false},
		{"api-key with key", map[string]string{"API_AUTH_MODE": "api-key", "API_KEY": "k"}, true},
		{"jwt without secret", map[string]string{"API_AUTH_MODE": "jwt"}, false},
		{"jwt with secret", map[string]string{"API_AUTH_MODE": "jwt", "API_JWT_SECRET": "s"}, true},
		{"unknown auth", map[string]string{"API_AUTH_MODE": "mtls"}, false},
		{"desktop strategy", map[string]string{"PAGESPEED_STRATEGY": "desktop"}, true},
		{"bad strategy", map[string]string{"PAGESPEED_STRATEGY": "tablet"}, false},
		{"negative retention", map[string]string{"METRICS_RETENTION_MONTHS": "-1"}, false},
		{"zero concurrency", map[string]string{"PORTFOLIO_CONCURRENCY": "0"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVISOR_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}
