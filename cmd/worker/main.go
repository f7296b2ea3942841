package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tavolo-app/tavolo/internal/app"
	"github.com/tavolo-app/tavolo/internal/resolve"
	"github.com/tavolo-app/tavolo/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	resolveCache := resolve.NewCache(redisClient, cfg.ResolveCacheTTL)
	taskMetrics := jobs.NewMetrics(nil)

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuthzInvalidate, Handler: jobs.NewInvalidateHandler(resolveCache, taskMetrics, logger)},
		},
	})

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker error", slog.Any("error", err))
		os.Exit(1)
	}
}
