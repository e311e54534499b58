package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/schola-erp/schola/internal/app"
	"github.com/schola-erp/schola/internal/auth"
	jobmetrics "github.com/schola-erp/schola/internal/jobs"
	"github.com/schola-erp/schola/internal/platform/db"
	"github.com/schola-erp/schola/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	maintenance := &jobs.Maintenance{
		Repo:    auth.NewRepository(pool),
		Logger:  logger,
		Metrics: jobmetrics.NewMetrics(nil),
	}

	// Catch up on anything a scheduler outage left behind.
	if err := maintenance.RunAll(ctx, 0, cfg.SessionSweepRetention); err != nil {
		logger.Warn("startup maintenance", slog.Any("error", err))
	}

	retentionHours := int(cfg.SessionSweepRetention.Hours())
	sweepTask, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{GraceMinutes: 15})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	pruneTask, err := jobs.NewEventPruneTask(jobs.EventPrunePayload{RetentionHours: retentionHours})
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Maintenance: maintenance,
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
