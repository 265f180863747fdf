// Package app assembles the BFA from configuration: backend clients,
// caches, services, background loops and the HTTP router. The server
// binary, the operator CLI and the end-to-end tests share it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/config"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/handler"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/cache"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/client"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/objectstore"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the process-level collaborators the caller owns.
type Deps struct {
	HTTPClient *http.Client
	Clock      service.Clock
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// App is a wired BFA.
type App struct {
	Handler  http.Handler
	Services handler.Services
	Hub      *realtime.Hub
	// Store is nil when the backend settings are missing.
	Store *supabase.Client

	logger  *zap.Logger
	stops   []func()
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New wires every component. With missing backend settings the app still
// builds: operational endpoints answer and /v1 returns 503.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Hub: realtime.NewHub(logger), logger: logger}
	loc := cfg.Location()
	opts := handler.Options{
		CORSOrigins:    cfg.CORSOrigins,
		WebhookSecret:  cfg.WebhookSecret,
		MissingSetting: cfg.MissingBackend(),
	}

	if opts.MissingSetting != "" {
		logger.Error("backend not configured, API routes disabled",
			zap.String("missing", opts.MissingSetting),
		)
		a.Services = handler.Services{Notifier: a.Hub, Location: loc}
		a.Handler = handler.NewRouter(a.Services, opts, deps.Metrics, logger)
		return a, nil
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	store := supabase.NewClient(
		deps.HTTPClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		resilience.NewCircuitBreaker("supabase"),
		resilienceCfg,
		logger,
	)
	a.Store = store
	functions := client.NewFunctionsClient(
		deps.HTTPClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		resilience.NewCircuitBreaker("edge-functions"),
		resilienceCfg,
	)

	files, err := fileStorage(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	// --- Caches ---
	permCache, profileCache, err := a.sharedCaches(cfg, logger)
	if err != nil {
		return nil, err
	}
	statusCache := cache.New[[]domain.Status](cfg.CacheTTL)
	lookupCache := cache.New[[]domain.Lookup](cfg.CacheTTL)
	a.stops = append(a.stops, statusCache.Stop, lookupCache.Stop)

	// --- Services ---
	lookups := service.NewLookupService(store, store, store, statusCache, lookupCache, a.Hub, deps.Metrics, logger)
	perms := service.NewPermissionResolver(store, store, permCache,
		resilience.NewBulkhead(cfg.MaxConcurrency), deps.Metrics, logger)
	sessions := service.NewSessionService(cfg.SupabaseJWTSecret, store, profileCache, deps.Clock, deps.Metrics, logger)
	demands := service.NewDemandService(store, lookups, store, a.Hub, deps.Clock, loc, deps.Metrics, logger)

	a.Services = handler.Services{
		Sessions:    sessions,
		Permissions: perms,
		Demands:     demands,
		Transitions: service.NewTransitionController(store, lookups, store, a.Hub, deps.Clock, deps.Metrics, logger),
		Autosave:    service.NewAutosaver(cfg.AutosaveDelay, demands.SaveField, deps.Metrics, logger),
		Timers:      service.NewTimerWatcher(store, a.Hub, deps.Clock, logger),
		Comments:    service.NewCommentService(store, store, a.Hub, deps.Clock, logger),
		Logs:        service.NewLogService(store, logger),
		Lookups:     lookups,
		Users:       service.NewUserService(functions, store, a.Hub, logger),
		Uploads:     service.NewUploadService(files, logger),
		Analytics:   service.NewAnalytics(store, store, lookups, deps.Clock, loc, deps.Metrics, logger),
		Notifier:    a.Hub,
		Backend:     store,
		Location:    loc,
	}
	a.Handler = handler.NewRouter(a.Services, opts, deps.Metrics, logger)
	return a, nil
}

func fileStorage(cfg *config.Config, store *supabase.Client, logger *zap.Logger) (port.FileStorage, error) {
	if cfg.StorageBackend != "s3" {
		return store, nil
	}
	s3, err := objectstore.New(objectstore.Config{
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Region:        cfg.S3Region,
		UseSSL:        cfg.S3UseSSL,
		PublicBaseURL: cfg.S3PublicURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	logger.Info("uploads go to s3-compatible storage", zap.String("endpoint", cfg.S3Endpoint))
	return s3, nil
}

// sharedCaches returns the permission and profile caches. With Redis they
// are shared by every replica, so one replica's invalidation is seen by all.
func (a *App) sharedCaches(cfg *config.Config, logger *zap.Logger) (port.Cache[domain.PermissionMatrix], port.Cache[domain.Profile], error) {
	if cfg.CacheBackend != "redis" {
		perm := cache.New[domain.PermissionMatrix](cfg.CacheTTL)
		prof := cache.New[domain.Profile](cfg.CacheTTL)
		a.stops = append(a.stops, perm.Stop, prof.Stop)
		return perm, prof, nil
	}

	rdb, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	a.stops = append(a.stops, func() { closeRedis(rdb, logger) })
	logger.Info("using redis cache", zap.String("addr", rdb.Options().Addr))
	return cache.NewRedis[domain.PermissionMatrix](rdb, "mkt:perm:", cfg.CacheTTL, logger),
		cache.NewRedis[domain.Profile](rdb, "mkt:profile:", cfg.CacheTTL, logger),
		nil
}

func closeRedis(rdb *redis.Client, logger *zap.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", zap.Error(err))
	}
}

// Start launches the cache invalidation loops.
func (a *App) Start(ctx context.Context) {
	if a.Store == nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	loops := []func(){
		func() { a.Services.Lookups.Run(ctx) },
		func() { a.Services.Permissions.Run(ctx, a.Hub) },
		func() { a.Services.Sessions.Run(ctx, a.Hub) },
	}
	for _, loop := range loops {
		a.running.Add(1)
		go func() {
			defer a.running.Done()
			loop()
		}()
	}
}

// Shutdown flushes pending autosaves, waits for background backfills and
// stops the loops. It does not close the HTTP server.
func (a *App) Shutdown(timeout time.Duration) {
	if a.Store != nil {
		done := make(chan struct{})
		go func() {
			a.Services.Autosave.Flush()
			a.Services.Permissions.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			a.logger.Warn("shutdown: pending writes did not finish in time")
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.running.Wait()
	for _, stop := range a.stops {
		stop()
	}
}
