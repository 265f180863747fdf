package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/app"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/config"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "mkt-demandas-bfa")
	defer logger.Sync()

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		logger.Warn("settings file ignored", zap.String("path", cfg.SettingsFile), zap.Error(err))
	}
	cfg.ApplySettings(settings)

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("backend_configured", cfg.MissingBackend() == ""),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("autosave_delay", cfg.AutosaveDelay),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "mkt-demandas-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Wiring ---
	bfa, err := app.New(cfg, app.Deps{
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to wire application", zap.Error(err))
	}
	bfa.Start(context.Background())

	// --- Server ---
	// SSE handlers clear their own write deadline; request contexts derive
	// from baseCtx so open streams end when shutdown starts.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      bfa.Handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	bfa.Shutdown(10 * time.Second)

	logger.Info("server stopped")
}
