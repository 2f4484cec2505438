package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/authcore/internal/app"
	"github.com/odyssey-erp/authcore/jobs"
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

	rt, err := app.NewRuntime(ctx, cfg, logger, app.RuntimeOptions{})
	if err != nil {
		logger.Error("init runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close runtime", slog.Any("error", err))
		}
	}()

	// The worker drains into the database regardless of AUDIT_SINK.
	appendJob := jobs.NewAuditAppendJob(rt.AuditRepo, logger, rt.Metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   rt.RedisOpt(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditAppend, Handler: appendJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
