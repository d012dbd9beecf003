package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planzy/server/internal/scraper"
)

var scrapeSource string

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape every portal once and ingest the results",
	Long: `Runs all registered adapters in parallel, merges their documents by
canonical URL (first adapter wins), and ingests the merged set
synchronously, chunk by chunk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, repo, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		adapters, err := buildAdapters(cfg, logger)
		if err != nil {
			return err
		}
		if scrapeSource != "" {
			adapters = filterAdapters(adapters, scrapeSource)
			if len(adapters) == 0 {
				logger.Error().Str("source", scrapeSource).Msg("scrape: no adapter with that name")
				return nil
			}
		}

		orchestrator := buildOrchestrator(cfg, adapters, repo.ScrapeRuns(), logger)
		docs, results := orchestrator.Run(ctx)
		for _, result := range results {
			if result.Err != nil {
				logger.Warn().Err(result.Err).Str("source", result.Source).Msg("scrape: adapter failed")
			}
		}
		logger.Info().Int("documents", len(docs)).Msg("scrape: portals done")

		venues := buildPlacesService(cfg, repo, logger)
		integrator := buildIntegrator(cfg, repo, venues, logger)
		stats, err := integrator.ProcessAll(ctx, docs)
		if err != nil {
			return err
		}
		logger.Info().
			Int("created", stats.Created).
			Int("updated", stats.Updated).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Msg("scrape: ingest complete")
		return nil
	},
}

// filterAdapters keeps only the adapter with the given name.
func filterAdapters(adapters []scraper.Adapter, name string) []scraper.Adapter {
	var kept []scraper.Adapter
	for _, adapter := range adapters {
		if adapter.Name() == name {
			kept = append(kept, adapter)
		}
	}
	return kept
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeSource, "source", "", "run only the named adapter")
}
