package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/habana-express/market-engine/internal/app"
	jobmetrics "github.com/habana-express/market-engine/internal/jobs"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/observability"
	"github.com/habana-express/market-engine/internal/platform/cache"
	"github.com/habana-express/market-engine/internal/platform/db"
	"github.com/habana-express/market-engine/internal/pricing"
	"github.com/habana-express/market-engine/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, logger, app.Deps{
		Store:      ledger.NewRepository(pool),
		Audit:      pool,
		Redis:      redisClient,
		Registerer: metrics.Registerer(),
	})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	loc := cfg.Location()

	priceJob := &jobs.PriceRefreshJob{
		Refresher:  services.Refresher,
		Rates:      services.Rates,
		Cadence:    pricing.Cadence{Every: cfg.PriceRefreshEveryDays, Anchor: pricing.DefaultAnchor, Loc: loc},
		Locker:     redislock.New(redisClient),
		LockTTL:    cfg.PriceRefreshLockTTL,
		Dispatcher: services.Dispatcher,
		Logger:     logger,
		Metrics:    jobMetrics,
	}
	warrantyJob := &jobs.WarrantyCheckJob{
		Checker:    services.Warranty,
		Dispatcher: services.Dispatcher,
		Logger:     logger,
		Metrics:    jobMetrics,
	}
	reportJob := &jobs.PeriodReportJob{
		Finance:    services.Finance,
		Dispatcher: services.Dispatcher,
		Logger:     logger,
		Metrics:    jobMetrics,
	}

	priceTask, err := jobs.NewPriceRefreshTask(jobs.PriceRefreshPayload{})
	if err != nil {
		logger.Error("build price refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Logger:      logger,
		Location:    loc,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPriceRefresh, Handler: priceJob.Handle},
			{Type: jobs.TaskWarrantyCheck, Handler: warrantyJob.Handle},
			{Type: jobs.TaskMonthlyReport, Handler: reportJob.Handle},
			{Type: jobs.TaskAnnualReport, Handler: reportJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PriceRefreshCron, Task: priceTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarrantyCron, Task: jobs.NewWarrantyCheckTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.MonthlyReportCron, Task: jobs.NewMonthlyReportTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: cfg.AnnualReportCron, Task: jobs.NewAnnualReportTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting worker", slog.String("timezone", loc.String()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
