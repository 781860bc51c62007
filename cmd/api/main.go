// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/commons/internal/api"
	"github.com/onnwee/commons/internal/audit"
	"github.com/onnwee/commons/internal/auth"
	"github.com/onnwee/commons/internal/config"
	"github.com/onnwee/commons/internal/db"
	"github.com/onnwee/commons/internal/event"
	"github.com/onnwee/commons/internal/health"
	"github.com/onnwee/commons/internal/idempotency"
	"github.com/onnwee/commons/internal/lock"
	"github.com/onnwee/commons/internal/media"
	"github.com/onnwee/commons/internal/middleware"
	"github.com/onnwee/commons/internal/organization"
	"github.com/onnwee/commons/internal/profile"
	"github.com/onnwee/commons/internal/project"
	"github.com/onnwee/commons/internal/tracing"
	"github.com/onnwee/commons/internal/visibility"
)

const serviceName = "commons-api"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; environment variables take precedence")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Commons API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if cfg != nil {
		errs = append(errs, cfg.Validate()...)
	}
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run serves until ctx is canceled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// app is the wired handler chain and the resources it owns.
type app struct {
	handler  http.Handler
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

func (a *app) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("failed to release resource", "error", err)
		}
	}
}

type repositories struct {
	profiles      profile.Repository
	organizations organization.Repository
	projects      project.Repository
	events        event.Repository
	audits        audit.Repository
}

// newApp wires every component from cfg. Without DATABASE_URL the
// repositories are in memory; without REDIS_URL locks and rate limits are
// per process.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	fail := func(err error) (*app, error) {
		a.close(logger)
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := middleware.NewMetrics()
	visibilityMetrics := visibility.NewMetrics()
	eventMetrics := event.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register, visibilityMetrics.Register, eventMetrics.Register,
	} {
		if err := register(a.registry); err != nil {
			return fail(fmt.Errorf("failed to register metrics: %w", err))
		}
	}

	filter, err := newFilter(cfg.VisibilityStrict, logger, visibilityMetrics)
	if err != nil {
		return fail(err)
	}

	provider, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		Insecure:     cfg.Env != "production",
	})
	if err != nil {
		return fail(fmt.Errorf("failed to start tracing: %w", err))
	}
	a.closers = append(a.closers, provider.Shutdown)

	checkers := make(map[string]health.Checker)

	repos := repositories{
		profiles:      profile.NewInMemoryRepository(),
		organizations: organization.NewInMemoryRepository(),
		projects:      project.NewInMemoryRepository(),
		events:        event.NewInMemoryRepository(),
		audits:        audit.NewInMemoryRepository(),
	}
	if cfg.DatabaseURL != "" {
		conn, err := openDatabase(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
		checkers["database"] = health.NewDBChecker(conn)
		repos = repositories{
			profiles:      profile.NewPostgresRepository(conn),
			organizations: organization.NewPostgresRepository(conn),
			projects:      project.NewPostgresRepository(conn),
			events:        event.NewPostgresRepository(conn, logger),
			audits:        audit.NewPostgresRepository(conn, logger),
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	var (
		locker  lock.Locker
		store   middleware.RateLimitStore
		replays idempotency.Repository
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("invalid REDIS_URL: %w", err))
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		checkers["redis"] = health.NewRedisChecker(client)
		locker = lock.NewRedisLocker(client, 0, 0)
		store = middleware.NewRedisRateLimitStore(client, httpMetrics, logger)
		replays = idempotency.NewRedisRepository(client)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go sweep(ctx, memStore, time.Minute)
		memReplays := idempotency.NewInMemoryRepository()
		go memReplays.RunCleanup(ctx, time.Hour, logger)
		locker = lock.NewInMemoryLocker()
		store = memStore
		replays = memReplays
	}

	var resolver api.MediaResolver
	if cfg.MediaEnabled() {
		svc, err := media.NewService(media.Config{
			BucketName:       cfg.R2BucketName,
			AccessKeyID:      cfg.R2AccessKeyID,
			SecretAccessKey:  cfg.R2SecretAccessKey,
			Endpoint:         cfg.R2Endpoint,
			URLExpiryMinutes: cfg.MediaURLExpiryMinutes,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to configure media: %w", err))
		}
		resolver = svc
	}

	registration := event.NewRegistrationService(repos.events, locker,
		event.WithMetrics(eventMetrics), event.WithLogger(logger))

	writeLimit := middleware.RateLimiter(store, middleware.DefaultWriteLimit(), middleware.UserKeyFunc(), httpMetrics)
	router := api.NewRouter(api.Handlers{
		Profiles:      api.NewProfileHandlers(repos.profiles, filter, resolver),
		Organizations: api.NewOrganizationHandlers(repos.organizations, filter, resolver),
		Projects:      api.NewProjectHandlers(repos.projects, filter, resolver),
		Events:        api.NewEventHandlers(repos.events, registration, repos.audits, filter, resolver),
		Health:        api.NewHealthHandlers(checkers),
		Metrics:       promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		WriteLimit:    writeLimit,
		Idempotency:   middleware.Idempotency(replays, idempotency.DefaultExpiry),
	})

	jwtOpts := []auth.Option{}
	if cfg.JWTPreviousSecret != "" {
		jwtOpts = append(jwtOpts, auth.WithPreviousSecret(cfg.JWTPreviousSecret))
	}
	jwtService := auth.NewJWTService(cfg.JWTSecret, jwtOpts...)

	globalLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitRequests,
		WindowDuration:    time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
	}

	// RequestID -> Logging -> Tracing -> HTTPMetrics -> RateLimiter -> Authenticate -> router
	var handler http.Handler = middleware.Authenticate(jwtService)(router)
	handler = middleware.RateLimiter(store, globalLimit, middleware.IPKeyFunc(), httpMetrics)(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.Logging(logger)(handler)
	a.handler = middleware.RequestID(handler)
	return a, nil
}

// newFilter registers the classification table of every kind. A table out
// of sync with its settings fields refuses startup.
func newFilter(strict bool, logger *slog.Logger, metrics *visibility.Metrics) (*visibility.Filter, error) {
	filter := visibility.NewFilter(
		visibility.WithReporter(visibility.NewLogReporter(logger, metrics)),
		visibility.WithStrict(strict),
	)
	errs := []error{
		filter.Register(visibility.KindProfile, profile.Table, profile.Fields),
		filter.Register(visibility.KindOrganization, organization.Table, organization.Fields),
		filter.Register(visibility.KindProject, project.Table, project.Fields),
		filter.Register(visibility.KindEvent, event.Table, event.Fields),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("visibility schema check failed: %w", err)
	}
	return filter, nil
}

func openDatabase(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	conn, err := db.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn, logger); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// sweep drops expired rate limit buckets every interval until ctx ends.
func sweep(ctx context.Context, store *middleware.InMemoryRateLimitStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}
