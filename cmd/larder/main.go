package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/larderhq/larder/internal/app"
	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/catalog"
	"github.com/larderhq/larder/internal/ledger"
	"github.com/larderhq/larder/internal/observability"
	"github.com/larderhq/larder/internal/platform/cache"
	"github.com/larderhq/larder/internal/platform/db"
	"github.com/larderhq/larder/internal/reconcile"
	"github.com/larderhq/larder/internal/shared"
	"github.com/larderhq/larder/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, stock cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	catalogRepo := catalog.NewRepository(pool)
	catalogHandler := catalog.NewHandler(logger, catalogRepo, auditService)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	var stockCache *ledger.Cache
	if redisClient != nil {
		stockCache = ledger.NewCache(redisClient, cfg.StockCacheTTL)
	}

	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool, auditRepo)
	ledgerService := ledger.NewService(ledgerRepo, catalogRepo, stockCache, metrics, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	reconcileRepo := reconcile.NewRepository(pool, auditRepo)
	reconcileEngine := reconcile.NewEngine(reconcileRepo, catalogRepo, ledgerRepo, idempotencyStore, stockCache, metrics, logger)
	reconcileHandler := reconcile.NewHandler(logger, reconcileEngine)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		LedgerHandler:    ledgerHandler,
		ReconcileHandler: reconcileHandler,
		AuditHandler:     auditHandler,
		JobsHandler:      jobsHandler,
		Pool:             pool,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
