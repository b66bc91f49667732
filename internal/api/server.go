// Package api is the HTTP surface of the dashboard.
package api

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/pulse/internal/dashboard"
	"github.com/p-blackswan/pulse/internal/health"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/models"
	"github.com/p-blackswan/pulse/internal/refresh"
	"github.com/p-blackswan/pulse/internal/repo"
	"github.com/p-blackswan/pulse/internal/requestid"
	"github.com/p-blackswan/pulse/internal/suggest"
)

// Dashboard builds read models. *dashboard.Service satisfies it.
type Dashboard interface {
	Portfolio(ctx context.Context) (*dashboard.PortfolioView, error)
	ProjectDetail(ctx context.Context, id string, opts dashboard.Options) (*dashboard.ProjectDetail, error)
	Accessibility(ctx context.Context, id string) (*dashboard.AccessibilityView, error)
}

// Suggestions generates and updates suggestions. *suggest.Engine satisfies it.
type Suggestions interface {
	Generate(ctx context.Context, projectID string) ([]models.Suggestion, error)
	UpdateStatus(ctx context.Context, projectID, id string, status models.SuggestionStatus, completedText string) (suggest.UpdateResult, error)
}

// FlowRefresher refreshes Jira flow metrics. *refresh.Service satisfies it.
type FlowRefresher interface {
	RefreshFlow(ctx context.Context, projectID string, month models.Month) (*refresh.Result, error)
}

// CacheInvalidator drops cached performance data. *crux.Fetcher satisfies it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, projectID string) error
	InvalidateAll(ctx context.Context) error
}

// Deps are the services behind the routes. Refresher and Cache may be nil,
// in which case their webhooks answer 503.
type Deps struct {
	Repo        repo.Repository
	Dashboard   Dashboard
	Suggestions Suggestions
	Refresher   FlowRefresher
	Cache       CacheInvalidator
	Checker     *health.Checker
	Metrics     *metrics.Metrics
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Server is the dashboard API Fiber application.
type Server struct {
	app     *fiber.App
	deps    Deps
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures the API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:    deps,
		metrics: deps.Metrics,
		logger:  logger.With().Str("component", "api").Logger(),
		config:  cfg,
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(s),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})

	s.setupMiddleware(cfg)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(requestid.Middleware())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PATCH, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(newRateLimiter(cfg.RateLimit).middleware())
	}

	s.app.Use(NewAuthMiddleware(cfg.Auth, s.logger))

	// access log + request metrics
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if isProbe(c.Path()) {
			return err
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status, _, _ = classify(err)
			}
		}
		route := c.Route().Path
		if s.metrics != nil {
			s.metrics.RecordRequest(route, strconv.Itoa(status))
			s.metrics.ObserveDuration(route, time.Since(start).Seconds())
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestid.FromContext(c.UserContext())).
			Msg("api request")
		return err
	})
}

func (s *Server) setupRoutes() {
	if s.deps.Checker != nil {
		s.deps.Checker.RegisterRoutes(s.app)
	} else {
		s.app.Get("/healthz", health.Liveness)
	}
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api")
	write := requireRole(RoleOperator)

	v1.Get("/projects", s.ListProjects)
	v1.Post("/projects", write, s.UpsertProject)
	v1.Get("/projects/:id", s.GetProjectDetail)
	v1.Patch("/projects/:id", write, s.UpdateProject)
	v1.Get("/projects/:id/metrics", s.GetMetrics)
	v1.Post("/projects/:id/metrics", write, s.UpsertMetrics)

	v1.Get("/portfolio", s.Portfolio)
	v1.Get("/accessibility/:id", s.Accessibility)

	v1.Get("/suggestions/:id", s.GetSuggestions)
	v1.Post("/suggestions/:id", write, s.UpdateSuggestion)

	v1.Post("/webhooks/jira-refresh", write, s.JiraRefresh)
	v1.Post("/webhooks/refresh", write, s.CacheRefresh)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("API server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
