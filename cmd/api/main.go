package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sampler/internal/bootstrap"
	"sampler/internal/http/handlers"
	httpapi "sampler/internal/http/httpapi"
	"sampler/internal/infra"
	"sampler/internal/infra/credentials"
	"sampler/internal/infra/geoip"
	"sampler/internal/jobs"
	"sampler/internal/metrics"
	"sampler/internal/middleware"
	"sampler/internal/narration"
	"sampler/internal/providers/chat"
	"sampler/internal/providers/search"
	"sampler/internal/storage"
)

func main() {
	// Load .env (optional)
	infra.LoadDotEnv()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.ApplyMigrations(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	stack, err := bootstrap.NewStack(ctx, cfg, &logger, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise job stack")
	}
	defer stack.Close()

	searchKey, err := stack.Credentials.KeyOrEnv(ctx, credentials.ProviderSearch, cfg.SearchAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load search api key from store")
	}
	searchClient, err := search.NewClient(search.Options{
		APIKey:  searchKey,
		BaseURL: cfg.SearchBaseURL,
		Model:   search.Model(cfg.SearchModel),
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure search client")
	}

	chatKey, err := stack.Credentials.KeyOrEnv(ctx, credentials.ProviderChat, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load chat api key from store")
	}
	chatClient, err := chat.NewClient(chat.Options{
		APIKey:  chatKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure chat client")
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	sessions := narration.NewSessions(chatClient, cfg.NarrationIdleTimeout, &logger, m)

	app := handlers.NewApp(*cfg, &logger)
	app.Metrics = m
	app.Jobs = stack.Service
	app.Archiver = jobs.NewArchiver(fileStore, nil, &logger)
	app.Stats = stack.Repo
	app.Searcher = searchClient
	app.Chatter = chatClient
	app.Narration = sessions
	app.Credentials = stack.Credentials
	for name, check := range stack.Checks() {
		app.Checks[name] = check
	}

	var limiter middleware.Limiter = middleware.NewMemoryLimiter(cfg.RateLimitPerMin, time.Minute)
	if stack.Redis != nil {
		limiter = middleware.NewRedisLimiter(stack.Redis, "sampler:ratelimit", cfg.RateLimitPerMin, time.Minute)
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins,
		Limiter:        limiter,
		CountryLookup:  resolver.Lookup(),
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		return server.Start()
	})
	g.Go(func() error {
		return stack.Subscribe(gctx, &logger)
	})
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		// Unfinished jobs stay resumable by the worker.
		if err := stack.Runner.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("job loops did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api stopped with error")
	}
	logger.Info().Msg("server stopped")
}
