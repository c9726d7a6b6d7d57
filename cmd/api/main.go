package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"advisory_portal_backend/internal/catalog"
	"advisory_portal_backend/internal/contracts"
	"advisory_portal_backend/internal/events"
	apphttp "advisory_portal_backend/internal/http"
	"advisory_portal_backend/internal/http/router"
	"advisory_portal_backend/internal/reporting"
	"advisory_portal_backend/internal/stages"
	"advisory_portal_backend/migrations"
	"advisory_portal_backend/platform/cache"
	"advisory_portal_backend/platform/config"
	"advisory_portal_backend/platform/db"
	"advisory_portal_backend/platform/logger"
	"advisory_portal_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Report cache; nil when redis is not configured, reports then compute
	// directly on every request.
	reportCache, err := cache.New(cfg)
	if err != nil {
		log.Warn("report cache disabled", "error", err)
	}
	if reportCache != nil {
		defer reportCache.Close()
		log.Info("report cache initialized", "ttl", cfg.ReportCacheTTL)
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// The stage engine first: catalog and contracts reconcile through it.
	stagesModule := stages.NewModule(pool, eventBus, val, log)
	catalogModule := catalog.NewModule(pool, eventBus, val, log, stagesModule.Service())
	contractsModule := contracts.NewModule(pool, eventBus, val, log, stagesModule.Service())
	reportingModule := reporting.NewModule(stagesModule.Service(), contractsModule.Service(), reportCache, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			catalogModule,
			stagesModule,
			contractsModule,
			reportingModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s: %w", name, lastErr)
}
