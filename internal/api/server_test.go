package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/pulse/internal/dashboard"
	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/health"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/refresh"
	"github.com/p-blackswan/pulse/internal/repo"
	"github.com/p-blackswan/pulse/internal/suggest"
)

type fakeRefresher struct {
	calls []string
	err   error
}

func (f *fakeRefresher) RefreshFlow(_ context.Context, projectID string, month models.Month) (*refresh.Result, error) {
	f.calls = append(f.calls, projectID+"@"+string(month))
	if f.err != nil {
		return nil, f.err
	}
	return &refresh.Result{ProjectID: projectID, Month: month, JiraKey: "DIP"}, nil
}

type fakeCache struct {
	invalidated []string
	all         int
}

func (f *fakeCache) Invalidate(_ context.Context, projectID string) error {
	f.invalidated = append(f.invalidated, projectID)
	return nil
}

func (f *fakeCache) InvalidateAll(context.Context) error {
	f.all++
	return nil
}

type testEnv struct {
	app       *fiber.App
	repo      *repo.MemoryRepo
	refresher *fakeRefresher
	cache     *fakeCache
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T, auth AuthConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	r := repo.NewMemoryRepo()
	m := metrics.New()
	env := &testEnv{repo: r, refresher: &fakeRefresher{}, cache: &fakeCache{}, metrics: m}

	checker := health.NewChecker(logger)
	checker.Register("storage", health.Required(func(context.Context) error { return nil }))

	srv := NewServer(ServerConfig{Auth: auth}, Deps{
		Repo:        r,
		Dashboard:   dashboard.NewService(r, logger),
		Suggestions: suggest.NewEngine(r, nil, logger),
		Refresher:   env.refresher,
		Cache:       env.cache,
		Checker:     checker,
		Metrics:     m,
	}, logger)
	env.app = srv.App()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(body, &p))
	return p.Type
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := e.repo.UpsertProject(ctx, models.Project{ID: "diptyque", Name: "Diptyque", URL: "https://diptyqueparis.com", JiraKey: "DIP"})
	require.NoError(t, err)
	_, err = e.repo.UpsertProjectMetrics(ctx, models.ProjectMetrics{
		ProjectID: "diptyque", Month: "2025-03",
		Perf: models.PerfMetrics{
			CoreWebVitals: models.CoreWebVitals{LCP: 4.2, CLS: 0.3, INP: 550},
			Accessibility: 0.6, BestPractices: 0.7, SEO: 0.8,
		},
		Flow: models.FlowMetrics{ThroughputRatio: 0.3, WIPRatio: 0.6, CycleTimeP50: 6, CycleTimeP85: 9, CycleTimeP95: 12},
	})
	require.NoError(t, err)
}

func TestProjects_CRUD(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})

	resp, body := env.do(t, "POST", "/api/projects", `{"id":"elon","name":"Elon","url":"https://elon.example.com","tags":["b2c","b2c"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var p models.Project
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, []string{"b2c"}, p.Tags)

	resp, body = env.do(t, "GET", "/api/projects", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Projects []models.Project `json:"projects"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Total)

	resp, body = env.do(t, "PATCH", "/api/projects/elon", `{"jiraKey":"ELON"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "ELON", p.JiraKey)
	assert.Equal(t, "https://elon.example.com", p.URL)

	resp, body = env.do(t, "PATCH", "/api/projects/missing", `{"jiraKey":"X"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", problemType(t, body))
}

func TestProjects_Validation(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})

	tests := []struct {
		name string
		body string
		typ  string
	}{
		{"missing id", `{"name":"x"}`, "validation_failed"},
		{"bad url", `{"id":"x","name":"x","url":"not a url"}`, "validation_failed"},
		{"bad jira key", `{"id":"x","name":"x","jiraKey":"A-B"}`, "validation_failed"},
		{"not json", `{`, "invalid_body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, "POST", "/api/projects", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.typ, problemType(t, body))
		})
	}
}

func TestMetrics_UploadAndRead(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})
	env.seed(t)

	resp, body := env.do(t, "POST", "/api/projects/diptyque/metrics",
		`{"month":"2025-04","perf":{"coreWebVitals":{"lcp":2.1,"cls":0.05,"inp":150},"accessibility":0.95,"bestPractices":0.9,"seo":0.92},"flow":{"throughputRatio":0.6,"wipRatio":0.3,"totalItemsCount":10}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var m models.ProjectMetrics
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, "diptyque", m.ProjectID)
	require.NotNil(t, m.Flow.QualityIssuesCount, "snapshots are enriched on write")

	resp, body = env.do(t, "GET", "/api/projects/diptyque/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Metrics []models.ProjectMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Len(t, got.Metrics, 2)

	resp, body = env.do(t, "GET", "/api/projects/diptyque/metrics?month=2025-4", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "malformed_month", problemType(t, body))

	resp, body = env.do(t, "POST", "/api/projects/diptyque/metrics", `{"month":"2025-13"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "malformed_month", problemType(t, body))

	resp, body = env.do(t, "POST", "/api/projects/diptyque/metrics", `{"month":"2025-05","perf":{"accessibility":1.5}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", problemType(t, body))

	resp, _ = env.do(t, "POST", "/api/projects/nope/metrics", `{"month":"2025-05"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDashboardRoutes(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})
	env.seed(t)

	resp, body := env.do(t, "GET", "/api/portfolio", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var view dashboard.PortfolioView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, 1, view.Summary.TotalProjects)

	resp, body = env.do(t, "GET", "/api/projects/diptyque?live=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var detail dashboard.ProjectDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, dashboard.VitalsStored, detail.VitalsOrigin, "no live source configured")

	resp, _ = env.do(t, "GET", "/api/projects/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, "GET", "/api/accessibility/diptyque", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var a11y dashboard.AccessibilityView
	require.NoError(t, json.Unmarshal(body, &a11y))
	assert.Equal(t, 0.6, a11y.Score)
}

func TestSuggestions_GenerateAndUpdate(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})
	env.seed(t)

	resp, body := env.do(t, "GET", "/api/suggestions/diptyque", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var got struct {
		Suggestions []models.Suggestion `json:"suggestions"`
		All         []models.Suggestion `json:"all"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.All, suggest.MaxPerSource)
	assert.Len(t, got.Suggestions, VisibleSuggestions)
	for _, s := range got.All {
		assert.Equal(t, models.SourceRule, s.Source)
	}

	first := got.All[0]
	resp, body = env.do(t, "POST", "/api/suggestions/diptyque",
		`{"suggestionId":"`+first.ID+`","status":"done","completedText":"`+first.Text+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res suggest.UpdateResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, models.StatusDone, res.Updated.Status)
	require.NotNil(t, res.Next)
	assert.NotEqual(t, first.Text, res.Next.Text)

	resp, body = env.do(t, "POST", "/api/suggestions/diptyque", `{"suggestionId":"`+first.ID+`","status":"irrelevant"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", problemType(t, body))

	resp, body = env.do(t, "POST", "/api/suggestions/diptyque", `{"suggestionId":"`+first.ID+`","status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", problemType(t, body))

	resp, _ = env.do(t, "POST", "/api/suggestions/diptyque", `{"suggestionId":"nope","status":"done"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, "GET", "/api/suggestions/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhooks_JiraRefresh(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})

	resp, body := env.do(t, "POST", "/api/webhooks/jira-refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_project", problemType(t, body))

	resp, body = env.do(t, "POST", "/api/webhooks/jira-refresh", `{"projectId":"diptyque","month":"2025-03"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, []string{"diptyque@2025-03"}, env.refresher.calls)

	env.refresher.err = perrors.ErrUnavailable
	resp, body = env.do(t, "POST", "/api/webhooks/jira-refresh", `{"projectId":"diptyque"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "upstream_unavailable", problemType(t, body))
}

func TestWebhooks_CacheRefresh(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})

	resp, body := env.do(t, "POST", "/api/webhooks/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_target", problemType(t, body))

	resp, _ = env.do(t, "POST", "/api/webhooks/refresh", `{"projectId":"elon"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"elon"}, env.cache.invalidated)

	resp, _ = env.do(t, "POST", "/api/webhooks/refresh", `{"all":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.cache.all)
}

func TestAuth_APIKey(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthAPIKey, APIKey: "secret"})

	resp, body := env.do(t, "GET", "/api/projects", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing_auth", problemType(t, body))

	resp, body = env.do(t, "GET", "/api/projects", "", "Authorization", "Basic dGVzdDp0ZXN0")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_auth_scheme", problemType(t, body))

	resp, body = env.do(t, "GET", "/api/projects", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_api_key", problemType(t, body))

	resp, _ = env.do(t, "GET", "/api/projects", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, _ := env.do(t, "GET", path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, "path: %s", path)
	}
}

func signToken(t *testing.T, secret string, role Role, ttl time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuth_JWTRoles(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthJWT, JWTSecret: "jwt-secret"})
	project := `{"id":"elon","name":"Elon"}`

	reader := signToken(t, "jwt-secret", RoleReadOnly, time.Hour)
	resp, _ := env.do(t, "GET", "/api/projects", "", "Authorization", "Bearer "+reader)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, "POST", "/api/projects", project, "Authorization", "Bearer "+reader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "insufficient_role", problemType(t, body))

	operator := signToken(t, "jwt-secret", RoleOperator, time.Hour)
	resp, _ = env.do(t, "POST", "/api/projects", project, "Authorization", "Bearer "+operator)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	expired := signToken(t, "jwt-secret", RoleAdmin, -time.Minute)
	resp, body = env.do(t, "GET", "/api/projects", "", "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", problemType(t, body))

	forged := signToken(t, "other-secret", RoleAdmin, time.Hour)
	resp, _ = env.do(t, "GET", "/api/projects", "", "Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint_CountsRequests(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})
	env.do(t, "GET", "/api/projects", "")

	resp, body := env.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pulse_http_requests_total{route="/api/projects",status="200"} 1`)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Mode: AuthNone})
	resp, _ := env.do(t, "GET", "/api/projects", "", "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(RateLimitConfig{RPS: 1, Burst: 2})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"), "burst exhausted")
	assert.True(t, rl.allow("b"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, rl.allow("a"), "refilled after one second")

	now = now.Add(time.Hour)
	rl.sweep(10 * time.Minute)
	assert.Empty(t, rl.clients)
}

func TestClassify(t *testing.T) {
	status, typ, _ := classify(perrors.NotFound("project", "x"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", typ)

	status, _, _ = classify(perrors.ErrConflict)
	assert.Equal(t, http.StatusConflict, status)

	status, typ, _ = classify(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", typ)
}
