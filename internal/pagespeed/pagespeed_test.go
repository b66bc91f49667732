package pagespeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/pulse/internal/retry"
)

func newTestClient(t *testing.T, key string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(key, StrategyMobile, zerolog.Nop())
	c.SetEndpoint(srv.URL)
	c.SetRetry(retry.Config{MaxAttempts: 2})
	return c
}

func TestFetch_LiveScore(t *testing.T) {
	c := newTestClient(t, "k-123", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "https://shop.example", q.Get("url"))
		assert.Equal(t, "ACCESSIBILITY", q.Get("category"))
		assert.Equal(t, "MOBILE", q.Get("strategy"))
		assert.Equal(t, "k-123", q.Get("key"))
		w.Write([]byte(`{"lighthouseResult":{"categories":{"accessibility":{"score":0.87}}}}`))
	})

	got := c.Fetch(context.Background(), "https://shop.example", 0.5)
	assert.Equal(t, SourcePageSpeed, got.Source)
	assert.Equal(t, 0.87, got.Score)
	assert.Equal(t, StrategyMobile, got.Details.Strategy)
	assert.False(t, got.FetchedAt.IsZero())
}

func TestFetch_NoKeyUsesStored(t *testing.T) {
	var hits int32
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	got := c.Fetch(context.Background(), "https://shop.example", 0.72)
	assert.Equal(t, SourceStored, got.Source)
	assert.Equal(t, 0.72, got.Score)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestFetch_Fallbacks(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		retries int32
	}{
		{"server error is retried", http.StatusServiceUnavailable, "", 2},
		{"client error", http.StatusBadRequest, `{"error":"bad url"}`, 1},
		{"zero score", http.StatusOK, `{"lighthouseResult":{"categories":{"accessibility":{"score":0}}}}`, 1},
		{"missing score", http.StatusOK, `{"lighthouseResult":{}}`, 1},
		{"garbage", http.StatusOK, `<html>`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			got := c.Fetch(context.Background(), "https://shop.example", 0.66)
			assert.Equal(t, SourceStored, got.Source)
			assert.Equal(t, 0.66, got.Score)
			assert.Equal(t, tt.retries, atomic.LoadInt32(&hits))
		})
	}
}

func TestUnavailable(t *testing.T) {
	c := NewClient("k", "", zerolog.Nop())
	got := c.Unavailable(0.8)
	assert.Equal(t, SourceUnavailable, got.Source)
	assert.Equal(t, 0.8, got.Score)
	assert.Nil(t, got.Details)
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, StrategyDesktop, ParseStrategy("DESKTOP"))
	assert.Equal(t, StrategyDesktop, ParseStrategy("desktop"))
	assert.Equal(t, StrategyMobile, ParseStrategy("MOBILE"))
	assert.Equal(t, StrategyMobile, ParseStrategy(""))
}
