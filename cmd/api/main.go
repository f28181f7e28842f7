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
	"wordbento/internal/http/handlers"
	httpapi "wordbento/internal/http/httpapi"
	"wordbento/internal/infra"
	"wordbento/internal/infra/credentials"
	"wordbento/internal/infra/geoip"
	"wordbento/internal/middleware"
	"wordbento/internal/orchestrator"
	"wordbento/internal/pipeline"
	"wordbento/internal/providers"
	"wordbento/internal/quota"
	"wordbento/internal/realtime"
	"wordbento/internal/registry"
	"wordbento/internal/sqlinline"
	"wordbento/internal/storage"
	"wordbento/internal/tasks"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	sql := infra.NewSQLRunner(dbpool, logger)
	if _, err := sql.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	store, closeStore, err := openObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	defer closeStore()

	countries, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryResolver geoip.CountryResolver
	if countries != nil {
		countryResolver = countries
		defer countries.Close()
	}

	bus := realtime.NewBus(rdb, &logger)
	manager := tasks.NewManager(tasks.Options{Repo: repo.NewTaskRepository(sql), Publisher: bus, Logger: &logger})
	resolver := credentials.NewResolver(credentials.ResolverOptions{
		Repo:     credentials.NewStore(sql),
		Cache:    rdb,
		Defaults: cfg.ProviderDefaults,
		Logger:   &logger,
	})

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout + 5*time.Second}
	downloads := providers.NewDownloadClient(cfg.ProviderTimeout)
	textAdapters, imageAdapters := registry.Adapters(httpClient, downloads, &logger)
	orch := orchestrator.New(orchestrator.Options{
		Resolver:       resolver,
		TextAdapters:   textAdapters,
		ImageAdapters:  imageAdapters,
		TextPlatforms:  cfg.TextPlatforms,
		ImagePlatforms: cfg.ImagePlatforms,
		Timeout:        cfg.ProviderTimeout,
		Logger:         &logger,
	})
	assetService := assets.NewService(assets.Options{
		Repo:          repo.NewAssetRepository(sql),
		Store:         store,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        &logger,
	})
	runner := pipeline.NewRunner(pipeline.Options{
		Tasks:    manager,
		Text:     orch,
		Images:   orch,
		Articles: article.NewFetcher(article.Options{Logger: &logger}),
		Assets:   assetService,
		Logger:   &logger,
	})

	var dispatcher *pipeline.Dispatcher
	appOpts := handlers.Options{
		Tasks:       manager,
		Quota:       quota.NewGate(quota.Options{Client: rdb, Limit: cfg.FreeCallsLimit, Window: cfg.FreeCallsWindow, FailOpen: cfg.QuotaFailOpen, Logger: &logger}),
		Credentials: resolver,
		Assets:      assetService,
		Bridge:      realtime.NewBridge(realtime.BridgeOptions{Tasks: manager, Bus: bus, PollInterval: cfg.StatusPollInterval, CheckOrigin: originChecker(cfg.CORSAllowedOrigins), Logger: &logger}),
		Platforms:   infra.KnownPlatforms,
		Logger:      &logger,
	}
	if cfg.DispatchMode == infra.DispatchInline {
		dispatcher = pipeline.NewDispatcher(runner, cfg.WorkerConcurrency, &logger)
		appOpts.Dispatcher = dispatcher
	}
	app := handlers.NewApp(appOpts)

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Proxies:        middleware.ProxyTrust{Proxies: cfg.TrustedProxies, Cloudflare: cfg.TrustCloudflare},
		Countries:      countryResolver,
		Logger:         logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("dispatch", cfg.DispatchMode).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if dispatcher != nil {
		logger.Info().Msg("waiting for running tasks")
		dispatcher.Wait()
	}
	logger.Info().Msg("server stopped")
}

func openObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, func(), error) {
	if cfg.StorageBackend == infra.StorageGCS {
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { _ = gcs.Close() }, nil
	}
	fs, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

// originChecker accepts websocket handshakes from the CORS allow list. An
// empty list leaves the bridge accepting any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
