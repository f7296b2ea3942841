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
	"github.com/redis/go-redis/v9"

	"github.com/tavolo-app/tavolo/internal/app"
	"github.com/tavolo-app/tavolo/internal/bulk"
	"github.com/tavolo-app/tavolo/internal/catalog"
	"github.com/tavolo-app/tavolo/internal/legacy"
	"github.com/tavolo-app/tavolo/internal/matrix"
	matrixhttp "github.com/tavolo-app/tavolo/internal/matrix/http"
	"github.com/tavolo-app/tavolo/internal/observability"
	"github.com/tavolo-app/tavolo/internal/platform/db"
	"github.com/tavolo-app/tavolo/internal/profiles"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	mapping := legacy.BuiltIn()
	if cfg.LegacyRoleMapPath != "" {
		mapping, err = legacy.Load(cfg.LegacyRoleMapPath)
		if err != nil {
			logger.Error("load legacy role mapping", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("legacy role mapping loaded", slog.Int("version", mapping.Version()))
	}

	catalogRepo := catalog.NewRepository(pool)
	profileRepo := profiles.NewRepository(pool)

	resolver := resolve.NewResolver(mapping)
	resolveCache := resolve.NewCache(redisClient, cfg.ResolveCacheTTL)
	resolveService := resolve.NewService(profileRepo, catalogRepo, resolver, resolveCache)

	catalogService := catalog.NewService(catalogRepo)
	matrixService := matrix.NewService(profileRepo, catalogRepo, resolver)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(asynqClient)

	auditor := bulk.NewAuditor(pool)
	processor := bulk.NewProcessor(catalogRepo, profileRepo, notifier, auditor, logger)

	metrics := observability.NewMetrics()
	catalogHandler := catalog.NewHandler(logger, catalogService, resolveCache)
	matrixHandler := matrixhttp.NewHandler(logger, matrixService, catalogRepo, processor, resolveService)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		MatrixHandler:  matrixHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
