package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/catalog"
	"server/internal/domain"
	"server/internal/generation"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/prompt"
	"server/internal/providers/video"
	"server/internal/registry"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	store, err := storage.NewFileStore(storage.Options{
		BasePath:   storagePath,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	provider := video.NewFalClient(video.FalOptions{
		APIKey:     cfg.FalAPIKey,
		BaseURL:    cfg.FalBaseURL,
		HTTPClient: &http.Client{},
		Logger:     &logger,
	})

	available := cfg.ProviderConfigured()
	if !available {
		logger.Warn().Str("provider", cfg.VideoProvider).Msg("provider credential missing, generation reports unavailable")
	}

	reg := registry.New(logger, registry.WithOnEvict(func(job *domain.Job) {
		if job.Artifact == nil {
			return
		}
		if err := store.Remove(job.Artifact); err != nil {
			logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove evicted artifact")
		}
	}))

	service := generation.NewService(generation.Options{
		Builder:   prompt.NewBuilder(cat),
		Enhancer:  enhancerFor(cfg),
		Provider:  provider,
		Store:     store,
		Registry:  reg,
		Logger:    logger,
		Available: available,
	})

	app := handlers.NewApp(service, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	reg.StartJanitor(ctx)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func enhancerFor(cfg *infra.Config) prompt.Enhancer {
	if cfg.GeminiAPIKey == "" {
		return prompt.NoopEnhancer{}
	}
	return prompt.NewGeminiEnhancer(prompt.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
}
