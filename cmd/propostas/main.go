package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/config"
	"github.com/obraprime/propostas-api/internal/domain"
	"github.com/obraprime/propostas-api/internal/handler"
	"github.com/obraprime/propostas-api/internal/infra/cache"
	"github.com/obraprime/propostas-api/internal/infra/observability"
	"github.com/obraprime/propostas-api/internal/infra/resilience"
	"github.com/obraprime/propostas-api/internal/infra/supabase"
	"github.com/obraprime/propostas-api/internal/migrations"
	"github.com/obraprime/propostas-api/internal/service"
)

func main() {
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if *migrate {
		if cfg.DatabaseURL == "" {
			logger.Fatal("DATABASE_URL is required for -migrate")
		}
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		logger.Info("migrations applied")
		return
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("recalc_max_retries", cfg.RecalcMaxRetries),
		zap.Int("audit_concurrency", cfg.AuditConcurrency),
	)

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "propostas-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	unitCache := cache.New[*domain.Unit](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Supabase client (catalog, composition and mapping stores) ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	store := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cb,
		resilienceCfg,
		logger,
	)

	// --- Services ---
	catalogSvc := service.NewCatalogService(store, unitCache, metrics, logger)
	mappingSvc := service.NewMappingService(store, store, logger)
	compositionSvc := service.NewCompositionService(store, catalogSvc, cfg.RecalcMaxRetries, metrics, logger)
	takeoffSvc := service.NewTakeoffService(catalogSvc, mappingSvc, store, metrics, logger)
	auditSvc := service.NewAuditService(store, catalogSvc, cfg.AuditConcurrency, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Catalog:      catalogSvc,
		Compositions: compositionSvc,
		Mappings:     mappingSvc,
		Takeoff:      takeoffSvc,
		Audit:        auditSvc,
	}, metrics, cfg, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
