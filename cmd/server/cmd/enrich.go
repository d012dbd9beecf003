package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var enrichLimit int

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Re-enrich stale venues against the Places API",
	Long: `Selects venues whose enrichment data is older than the refresh horizon
and fetches fresh details for them, oldest first. Requires
GOOGLE_MAPS_API_KEY and PLACES_ENRICH_ENABLED=true.`,
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

		venues := buildPlacesService(cfg, repo, logger)
		refreshed, err := venues.RefreshStale(ctx, enrichLimit)
		if err != nil {
			return err
		}
		logger.Info().Int("refreshed", refreshed).Msg("enrich: sweep complete")
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 200, "maximum venues to refresh in one sweep")
}
