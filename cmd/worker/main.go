package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wordbento/internal/adapter/repo"
	"wordbento/internal/article"
	"wordbento/internal/assets"
	"wordbento/internal/infra"
	"wordbento/internal/infra/credentials"
	"wordbento/internal/orchestrator"
	"wordbento/internal/pipeline"
	"wordbento/internal/providers"
	"wordbento/internal/realtime"
	"wordbento/internal/registry"
	"wordbento/internal/storage"
	"wordbento/internal/tasks"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	sql := infra.NewSQLRunner(pool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	var store storage.ObjectStore
	if cfg.StorageBackend == infra.StorageGCS {
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure storage")
		}
		defer gcs.Close()
		store = gcs
	} else {
		fs, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure storage")
		}
		store = fs
	}

	manager := tasks.NewManager(tasks.Options{
		Repo:      repo.NewTaskRepository(sql),
		Publisher: realtime.NewBus(rdb, &logger),
		Logger:    &logger,
	})
	resolver := credentials.NewResolver(credentials.ResolverOptions{
		Repo:     credentials.NewStore(sql),
		Cache:    rdb,
		Defaults: cfg.ProviderDefaults,
		Logger:   &logger,
	})
	textAdapters, imageAdapters := registry.Adapters(
		&http.Client{Timeout: cfg.ProviderTimeout + 5*time.Second},
		providers.NewDownloadClient(cfg.ProviderTimeout),
		&logger,
	)
	orch := orchestrator.New(orchestrator.Options{
		Resolver:       resolver,
		TextAdapters:   textAdapters,
		ImageAdapters:  imageAdapters,
		TextPlatforms:  cfg.TextPlatforms,
		ImagePlatforms: cfg.ImagePlatforms,
		Timeout:        cfg.ProviderTimeout,
		Logger:         &logger,
	})
	runner := pipeline.NewRunner(pipeline.Options{
		Tasks:    manager,
		Text:     orch,
		Images:   orch,
		Articles: article.NewFetcher(article.Options{Logger: &logger}),
		Assets: assets.NewService(assets.Options{
			Repo:          repo.NewAssetRepository(sql),
			Store:         store,
			PublicBaseURL: cfg.PublicBaseURL,
			Logger:        &logger,
		}),
		Logger: &logger,
	})

	if cfg.DispatchMode != infra.DispatchQueue {
		// Claiming here would race the api's inline dispatcher.
		logger.Warn().Str("dispatch", cfg.DispatchMode).Msg("worker: DISPATCH_MODE is not queue, nothing to do")
		return
	}

	worker := pipeline.NewWorker(pipeline.WorkerOptions{
		Claimer:     manager,
		Runner:      runner,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      &logger,
	})
	if err := worker.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
}
