package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"anysnap/internal/analysis"
	"anysnap/internal/cache"
	"anysnap/internal/config"
	"anysnap/internal/database"
	"anysnap/internal/hooks"
	"anysnap/internal/imagefetch"
	"anysnap/internal/log"
	"anysnap/internal/providers"
	"anysnap/internal/queue"
	"anysnap/internal/repository"
	"anysnap/internal/tasks"
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
	defer dbPool.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	images := repository.NewImageRepository(dbPool)
	users := repository.NewUserRepository(dbPool)
	annotations := repository.NewAnnotationRepository(dbPool, cfg.Postgres.StructuredPayload)
	notifications := repository.NewNotificationRepository(dbPool)

	producer := queue.NewProducer(redisClient, cfg.Redis.Stream)
	fetcher := imagefetch.NewFetcher(
		imagefetch.NewRedisByteCache(redisClient),
		cfg.Analysis.FetchTimeout,
		cfg.Analysis.ByteCacheTTL,
		logger,
	)

	merger := analysis.NewMerger(annotations, logger)
	hookScheduler := analysis.NewQueueHookScheduler(producer, logger)
	runner := analysis.NewRunner(images, merger, fetcher, hookScheduler, logger)

	adapters := map[string]providers.Adapter{
		"vision":    providers.NewVisionAdapter(cfg.Providers.Vision),
		"cognitive": providers.NewCognitiveAdapter(cfg.Providers.Cognitive),
		"clarifai":  providers.NewClarifaiAdapter(cfg.Providers.Clarifai),
	}

	docStore, err := hooks.NewMinioDocumentStore(cfg.Mirror)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init mirror store")
	}
	if err := docStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure mirror bucket failed")
	}

	mirrorHook := hooks.NewMirrorHook(annotations, images, docStore, logger)
	notifyHook := hooks.NewNotifyHook(cfg.Notify, users, notifications, hooks.NewRedisDeduper(redisClient), logger)

	processor := tasks.NewProcessor(images, runner, adapters, mirrorHook, notifyHook, logger)
	consumer := queue.NewConsumer(
		redisClient,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queue.ClaimInterval,
		logger,
		processor,
	)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("consumer group setup failed")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Start(runCtx); err != nil && err != context.Canceled {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-runCtx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
