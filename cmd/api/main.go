package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"anysnap/internal/analysis"
	"anysnap/internal/cache"
	"anysnap/internal/config"
	"anysnap/internal/database"
	"anysnap/internal/handlers"
	"anysnap/internal/imagefetch"
	"anysnap/internal/jobs"
	"anysnap/internal/log"
	"anysnap/internal/providers"
	"anysnap/internal/queue"
	"anysnap/internal/repository"
	"anysnap/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.Migrate(dbPool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	images := repository.NewImageRepository(dbPool)
	users := repository.NewUserRepository(dbPool)
	annotations := repository.NewAnnotationRepository(dbPool, cfg.Postgres.StructuredPayload)

	producer := queue.NewProducer(redisClient, cfg.Redis.Stream)
	fetcher := imagefetch.NewFetcher(
		imagefetch.NewRedisByteCache(redisClient),
		cfg.Analysis.FetchTimeout,
		cfg.Analysis.ByteCacheTTL,
		logger,
	)
	status := analysis.NewStatusTracker(analysis.NewRedisKV(redisClient), cfg.Analysis.StatusTTL)

	merger := analysis.NewMerger(annotations, logger)
	hooks := analysis.NewQueueHookScheduler(producer, logger)
	runner := analysis.NewRunner(images, merger, fetcher, hooks, logger)

	adapters := analysis.AdapterSet{
		Sync: providers.NewCraftarAdapter(cfg.Providers.Craftar),
		Async: map[string]providers.Adapter{
			"vision":    providers.NewVisionAdapter(cfg.Providers.Vision),
			"cognitive": providers.NewCognitiveAdapter(cfg.Providers.Cognitive),
			"clarifai":  providers.NewClarifaiAdapter(cfg.Providers.Clarifai),
		},
	}

	dispatcher := analysis.NewDispatcher(images, producer, status, fetcher, runner, adapters, logger)

	handlerSet := handlers.NewHandlerSet(logger, dbPool, redisClient, images, users, annotations, dispatcher, status, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(images, dispatcher, cfg.Analysis.ReanalyzeInterval, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if scheduler != nil {
		cancel := scheduler.Stop()
		cancel()
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
