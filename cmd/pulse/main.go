package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/pulse/internal/advisor"
	"github.com/p-blackswan/pulse/internal/api"
	"github.com/p-blackswan/pulse/internal/cache"
	"github.com/p-blackswan/pulse/internal/config"
	"github.com/p-blackswan/pulse/internal/crux"
	"github.com/p-blackswan/pulse/internal/dashboard"
	"github.com/p-blackswan/pulse/internal/health"
	jiraclient "github.com/p-blackswan/pulse/internal/jira"
	"github.com/p-blackswan/pulse/internal/llm"
	"github.com/p-blackswan/pulse/internal/metrics"
	"github.com/p-blackswan/pulse/internal/notify"
	"github.com/p-blackswan/pulse/internal/pagespeed"
	"github.com/p-blackswan/pulse/internal/refresh"
	"github.com/p-blackswan/pulse/internal/repo"
	"github.com/p-blackswan/pulse/internal/seed"
	"github.com/p-blackswan/pulse/internal/store"
	"github.com/p-blackswan/pulse/internal/suggest"
)

// cacheEntries bounds the in-process CrUX cache tier.
const cacheEntries = 256

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.HTTPListenAddr).
		Str("storage", cfg.StorageDriver).
		Bool("jira_enabled", cfg.JiraEnabled()).
		Bool("crux_enabled", cfg.CruxEnabled()).
		Bool("pagespeed_enabled", cfg.PageSpeedEnabled()).
		Bool("advisor_enabled", cfg.AdvisorEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting pulse")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()
	checker := health.NewChecker(logger)
	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}

	// Repository
	var (
		repository repo.Repository
		sqlite     *store.Store
	)
	switch cfg.StorageDriver {
	case "sqlite":
		sqlite, err = store.New(cfg.SQLitePath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open store")
		}
		defer sqlite.Close()
		repository = sqlite
		checker.Register("storage", health.Required(sqlite.Ping))
	default:
		repository = repo.NewMemoryRepo()
		checker.Register("storage", health.Required(func(context.Context) error { return nil }))
	}

	if err := primeRepository(ctx, repository, cfg.SeedPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to load seed data")
	}

	// CrUX performance webhook, cached in memory and optionally in Redis
	var cruxFetcher *crux.Fetcher
	if cfg.CruxEnabled() {
		cacheStore, closeCache := newCruxCache(ctx, cfg, checker, logger)
		defer closeCache()
		cruxFetcher = crux.NewFetcher(cfg.CruxWebhookURL, cacheStore, logger,
			crux.WithHTTPClient(upstream),
			crux.WithCacheTTL(cfg.CruxCacheTTL),
			crux.WithMinInterval(cfg.CruxMinInterval),
			crux.WithMetrics(m),
		)
	} else {
		logger.Info().Msg("CrUX webhook not configured, live vitals disabled")
	}

	// Dashboard read models
	dashOpts := []dashboard.Option{
		dashboard.WithFocusYear(cfg.FocusYear),
		dashboard.WithConcurrency(cfg.PortfolioConcurrency),
		dashboard.WithMetrics(m),
	}
	if cruxFetcher != nil {
		dashOpts = append(dashOpts, dashboard.WithVitals(cruxFetcher))
	}
	psi := pagespeed.NewClient(cfg.PageSpeedAPIKey, pagespeed.ParseStrategy(cfg.PageSpeedStrategy), logger)
	psi.SetHTTPClient(upstream)
	psi.SetMetrics(m)
	dashOpts = append(dashOpts, dashboard.WithAccessibility(psi))
	dash := dashboard.NewService(repository, logger, dashOpts...)

	// Suggestion engine with optional LLM advisor
	var adv suggest.Advisor
	if cfg.AdvisorEnabled() {
		provider := llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
			llm.WithModel(cfg.AnthropicModel),
			llm.WithLogger(logger),
		)
		a := advisor.New(provider, cfg.AdvisorTimeout, logger)
		a.SetMetrics(m)
		adv = a
		logger.Info().Str("model", provider.ModelID()).Msg("advisor enabled")
	}
	engine := suggest.NewEngine(repository, adv, logger)
	engine.SetMetrics(m)

	// Jira flow refresh
	var refresher *refresh.Service
	if cfg.JiraEnabled() {
		jc := jiraclient.NewClient(cfg.JiraBaseURL, jiraclient.NewAuthenticator(cfg.JiraAPIEmail, cfg.JiraAPIToken), logger)
		jc.SetHTTPClient(upstream)
		checker.Register("jira", health.Optional(jc.Ping))

		flow := jiraclient.NewFlowFetcher(jc, logger)
		flow.SetMetrics(m)

		var inv refresh.Invalidator
		if cruxFetcher != nil {
			inv = cruxFetcher
		}
		refresher = refresh.NewService(repository, flow, inv, logger)
		refresher.SetMetrics(m)
		logger.Info().Msg("Jira flow refresh enabled")
	} else {
		logger.Info().Msg("Jira not configured, flow refresh disabled")
	}

	// Scheduled jobs
	scheduler := refresh.NewScheduler(cfg.JobTimeout, logger)
	if refresher != nil {
		addJob(scheduler, "refresh", cfg.RefreshSchedule, func(ctx context.Context) error {
			_, err := refresher.RefreshAll(ctx, "")
			return err
		}, logger)
	}
	if cfg.SlackEnabled() {
		digest := notify.NewDigest(cfg.SlackBotToken, cfg.SlackDigestChannel, dash, logger)
		addJob(scheduler, "digest", cfg.DigestSchedule, digest.Send, logger)
	}
	if sqlite != nil && cfg.MetricsRetentionMonths > 0 {
		keep := cfg.MetricsRetentionMonths
		addJob(scheduler, "retention", cfg.RetentionSchedule, func(ctx context.Context) error {
			_, err := sqlite.PruneMetricsBefore(ctx, store.RetentionCutoff(time.Now(), keep))
			return err
		}, logger)
	}
	scheduler.Start()

	// API server
	deps := api.Deps{
		Repo:        repository,
		Dashboard:   dash,
		Suggestions: engine,
		Checker:     checker,
		Metrics:     m,
	}
	if refresher != nil {
		deps.Refresher = refresher
	}
	if cruxFetcher != nil {
		deps.Cache = cruxFetcher
	}
	server := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.HTTPListenAddr,
		Auth: api.AuthConfig{
			Mode:      cfg.APIAuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.APIJWTSecret,
		},
		RateLimit:   api.RateLimitConfig{RPS: cfg.APIRateLimitRPS, Burst: cfg.APIRateLimitBurst},
		CORSOrigins: cfg.APICORSOrigins,
	}, deps, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}
	scheduler.Stop(shutdownCtx)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("pulse stopped")
}

// newCruxCache builds the CrUX response cache: in-process, fronting Redis when
// configured and reachable. The returned func releases the Redis connection.
func newCruxCache(ctx context.Context, cfg *config.Config, checker *health.Checker, logger zerolog.Logger) (cache.Store, func()) {
	var store cache.Store = cache.NewMemoryStore(cacheEntries)
	if !cfg.RedisEnabled() {
		return store, func() {}
	}
	rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, "pulse:crux")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-process cache only")
		return store, func() {}
	}
	checker.Register("redis", health.Optional(rs.Ping))
	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache tier enabled")
	return cache.NewTiered(store, rs, cfg.CruxMinInterval, logger), func() {
		if err := rs.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close redis cache")
		}
	}
}

func addJob(s *refresh.Scheduler, name, spec string, job refresh.Job, logger zerolog.Logger) {
	if err := s.Add(name, spec, job); err != nil {
		logger.Fatal().Err(err).Str("job", name).Msg("invalid job schedule")
	}
}

// primeRepository loads the quality-incident ledger and, on an empty
// repository, the seed projects and metrics.
func primeRepository(ctx context.Context, r repo.Repository, path string, logger zerolog.Logger) error {
	f, err := seed.Load(path)
	if err != nil {
		return err
	}
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		logger.Info().Int("projects", len(projects)).Msg("repository already populated, loading incidents only")
		return r.LoadQualityIncidents(ctx, f.Incidents)
	}
	if err := seed.Apply(ctx, r, f); err != nil {
		return err
	}
	logger.Info().
		Int("projects", len(f.Projects)).
		Int("metrics", len(f.Metrics)).
		Int("incidents", len(f.Incidents)).
		Msg("seed data loaded")
	return nil
}
