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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	// Postings made by the worker (recurring auto-post, ingested events) are
	// announced through the same queue as API postings.
	ledger, err := app.BuildLedger(ctx, cfg, logger, app.BuildOptions{
		Notifier: jobs.NewQueueNotifier(jobClient.Queue()),
	})
	if err != nil {
		logger.Error("build ledger", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledger.Close()
	if ledger.Redis == nil {
		logger.Error("worker requires redis", slog.String("addr", cfg.RedisAddr))
		os.Exit(1)
	}

	registry := observability.NewMetrics()
	metrics := registry.Jobs()
	tickJob := &jobs.RecurringTickJob{Runner: ledger.Recurring, Logger: logger, Metrics: metrics, Today: cfg.Today}
	integrityJob := &jobs.GLIntegrityJob{Verifier: ledger.Accounts, Logger: logger, Metrics: metrics}
	ingestJob := &jobs.EventIngestJob{Events: ledger.Events, Logger: logger, Metrics: metrics}
	retryJob := &jobs.EventRetryJob{Events: ledger.Events, Logger: logger, Metrics: metrics, DefaultLimit: cfg.EventRetryBatch}
	postedJob := &jobs.JournalPostedJob{Redis: ledger.Redis, Logger: logger}

	tickTask, err := jobs.NewRecurringTickTask(time.Time{})
	if err != nil {
		logger.Error("build recurring task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewGLIntegrityTask()
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	retryTask, err := jobs.NewEventRetryTask(cfg.EventRetryBatch)
	if err != nil {
		logger.Error("build retry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurringTick, Handler: tickJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskEventIngest, Handler: ingestJob.Handle},
			{Type: jobs.TaskEventRetry, Handler: retryJob.Handle},
			{Type: jobs.TaskJournalPosted, Handler: postedJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecurringCron, Task: tickTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.GLIntegrityCron, Task: integrityTask},
			{Spec: cfg.EventRetryCron, Task: retryTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: registry.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if cfg.WorkerMetricsAddr != "" {
		g.Go(func() error {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
