// Package main runs the backtest service: HTTP API, admission scheduler,
// run orchestrator and progress sweeper.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtest-lab/internal/api"
	"backtest-lab/internal/config"
	"backtest-lab/internal/engine"
	"backtest-lab/internal/logging"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/progress"
	"backtest-lab/internal/scheduler"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
	"backtest-lab/internal/strategy"
)

// allStores holds all storage implementations.
type allStores struct {
	runStore         storage.RunStore
	tradeStore       storage.TradeStore
	metricsStore     storage.MetricsStore
	equityCurveStore storage.EquityCurveStore
	barStore         storage.BarStore
}

func main() {
	configPath := flag.String("config", ".", "Directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metricsHandler := observability.UseNamespace(cfg.Metrics.Namespace)

	stores, cleanup, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	progressStore := progress.NewStore(progress.Options{TTL: cfg.Progress.TTL, Logger: logger})
	progressStore.OnSweep = func(removed int) {
		observability.RecordProgressSweep(removed, progressStore.Len())
	}
	go func() {
		_ = progressStore.RunSweeper(ctx, cfg.Progress.SweepInterval)
	}()

	eng := engine.New(engine.Options{
		Evaluator:            strategy.NewEvaluator(),
		Data:                 stores.barStore,
		Progress:             progressStore,
		Checkpoints:          stores.runStore,
		Logger:               logger,
		CheckpointInterval:   cfg.Engine.CheckpointInterval,
		EquityCurveMaxPoints: cfg.Engine.EquityCurveMaxPoints,
		MinCapitalFloor:      cfg.Engine.MinCapitalFloor,
		DefaultPositionPct:   cfg.Engine.DefaultPositionPct,
		GapTolerance:         cfg.Engine.GapTolerance,
		ImpactCoefficient:    cfg.Engine.ImpactCoefficient,
	})

	sched := scheduler.New(scheduler.Options{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		Logger:        logger,
	})
	defer sched.Stop()

	orch := orchestrator.New(orchestrator.Options{
		RunStore:         stores.runStore,
		TradeStore:       stores.tradeStore,
		MetricsStore:     stores.metricsStore,
		EquityCurveStore: stores.equityCurveStore,
		Engine:           eng,
		Scheduler:        sched,
		Progress:         progressStore,
		Logger:           logger,
	})
	if err := sched.SetLauncher(orch); err != nil {
		return fmt.Errorf("wire scheduler: %w", err)
	}

	report, err := orch.Recover(ctx)
	if err != nil {
		return fmt.Errorf("crash recovery: %w", err)
	}
	logger.Info("recovery sweep done",
		zap.Int("orphaned", report.Orphaned),
		zap.Int("readmitted", report.Readmitted),
	)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewServer(api.Options{
		Runs:      orch,
		Scheduler: sched,
		Metrics:   metricsHandler,
		Logger:    logger,
	}).Router()

	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs still active at shutdown", zap.Error(err))
	}
	return nil
}

// createStores builds in-memory stores, or Postgres for run records and
// ClickHouse for bars.
func createStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*allStores, func(), error) {
	if cfg.UseMemory {
		logger.Info("using in-memory storage")
		stores := &allStores{
			runStore:         memory.NewRunStore(),
			tradeStore:       memory.NewTradeStore(),
			metricsStore:     memory.NewMetricsStore(),
			equityCurveStore: memory.NewEquityCurveStore(),
			barStore:         memory.NewBarStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	// ClickHouse
	var chConn *chstore.Conn
	if cfg.Migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		runStore:         pgstore.NewRunStore(pool),
		tradeStore:       pgstore.NewTradeStore(pool),
		metricsStore:     pgstore.NewMetricsStore(pool),
		equityCurveStore: pgstore.NewEquityCurveStore(pool),
		barStore:         chstore.NewBarStore(chConn),
	}

	cleanup := func() {
		_ = chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}
