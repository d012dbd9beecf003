package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/planzy/server/internal/config"
	"github.com/planzy/server/internal/domain/artists"
	"github.com/planzy/server/internal/domain/events"
	"github.com/planzy/server/internal/domain/places"
	"github.com/planzy/server/internal/domain/tags"
	"github.com/planzy/server/internal/embedding"
	"github.com/planzy/server/internal/places/google"
	"github.com/planzy/server/internal/resilience"
	"github.com/planzy/server/internal/scraper"
	"github.com/planzy/server/internal/storage/postgres"
)

// openStorage connects the pool and wraps it in the repository fan-out.
func openStorage(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *postgres.Repository, error) {
	pool, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, repo, nil
}

func breakerConfig(cfg config.Config) resilience.BreakerConfig {
	breaker := resilience.DefaultBreakerConfig()
	if cfg.Resilience.BreakerFailPct > 0 {
		breaker.FailureRatePct = cfg.Resilience.BreakerFailPct
	}
	if cfg.Resilience.BreakerWindow > 0 {
		breaker.MinRequests = uint32(cfg.Resilience.BreakerWindow)
	}
	if cfg.Resilience.BreakerOpenWait > 0 {
		breaker.OpenWait = cfg.Resilience.BreakerOpenWait
	}
	return breaker
}

// buildPlacesService wires the Google client behind the venue service.
// Enrichment stays disabled without an API key, leaving events venue-less
// rather than failing ingestion.
func buildPlacesService(cfg config.Config, repo *postgres.Repository, logger zerolog.Logger) *places.Service {
	enabled := cfg.Places.EnrichEnabled && cfg.Places.APIKey != ""
	if cfg.Places.EnrichEnabled && cfg.Places.APIKey == "" {
		logger.Warn().Msg("setup: places enrichment requested but GOOGLE_MAPS_API_KEY is empty; disabling")
	}

	client := google.NewClient(cfg.Places.BaseURL, cfg.Places.APIKey,
		google.WithMinInterval(cfg.Places.RateDelay),
		google.WithRetrySettings(cfg.Resilience.RetryMax, cfg.Resilience.RetryWait),
		google.WithBreakerSettings(breakerConfig(cfg)),
	)

	return places.NewService(repo.Places(), client, places.ServiceConfig{
		Enabled:        enabled,
		RefreshHorizon: time.Duration(cfg.Places.RefreshDays) * 24 * time.Hour,
	}, logger)
}

func buildIntegrator(cfg config.Config, repo *postgres.Repository, venues *places.Service, logger zerolog.Logger) *events.Integrator {
	return events.NewIntegrator(
		repo.Events(),
		artists.NewRegistry(repo.Artists()),
		tags.NewRegistry(repo.Tags()),
		venues,
		events.IntegratorConfig{
			ChunkSize: cfg.Integrator.ChunkSize,
			BatchSize: cfg.Integrator.BatchSize,
			Tick:      cfg.Integrator.Tick,
		},
		logger,
	)
}

// buildAdapters assembles the portal adapters: the two built-in API/browser
// adapters plus one CSS adapter per enabled YAML source definition.
func buildAdapters(cfg config.Config, logger zerolog.Logger) ([]scraper.Adapter, error) {
	adapters := []scraper.Adapter{
		scraper.NewEbiletAdapter(cfg.Scraper.CapPerSource, logger),
		scraper.NewGoingAppAdapter(cfg.Scraper.CapPerSource, logger),
	}

	sources, err := scraper.LoadSourceConfigs(cfg.Scraper.SourcesDir)
	if err != nil {
		return nil, fmt.Errorf("load source configs: %w", err)
	}
	for _, source := range sources {
		if !source.Enabled {
			logger.Info().Str("source", source.Name).Msg("setup: source disabled, skipping")
			continue
		}
		adapters = append(adapters, scraper.NewCSSAdapter(source, logger))
	}
	return adapters, nil
}

func buildOrchestrator(cfg config.Config, adapters []scraper.Adapter, runs scraper.RunStore, logger zerolog.Logger) *scraper.Orchestrator {
	return scraper.NewOrchestrator(adapters, runs, scraper.OrchestratorConfig{
		CapPerSource: cfg.Scraper.CapPerSource,
		Concurrency:  cfg.Scraper.Concurrency,
	}, logger)
}

func buildEmbeddingClient(cfg config.Config) (*embedding.Client, error) {
	if cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		embedding.WithModel(cfg.Embedding.Model, cfg.Embedding.Dimensions),
		embedding.WithRetrySettings(cfg.Resilience.RetryMax, cfg.Resilience.RetryWait),
		embedding.WithBreakerSettings(breakerConfig(cfg)),
	), nil
}

func buildEmbeddingWorker(cfg config.Config, repo *postgres.Repository, provider embedding.Provider, logger zerolog.Logger) *embedding.Worker {
	return embedding.NewWorker(repo.Vectors(), provider, embedding.WorkerConfig{
		SubBatch:   cfg.Embedding.SubBatch,
		BatchLimit: cfg.Embedding.BatchLimit,
		Sleep:      cfg.Embedding.Sleep,
	}, logger)
}
