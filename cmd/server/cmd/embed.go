package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Vectorize events missing an embedding",
	Long: `Sweeps the events table for rows without a vector, composes their
embedding text, requests vectors in sub-batches and stores them.
One sweep; run the worker subcommand for continuous operation.`,
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

		provider, err := buildEmbeddingClient(cfg)
		if err != nil {
			return err
		}

		worker := buildEmbeddingWorker(cfg, repo, provider, logger)
		stored, err := worker.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("vectors", stored).Msg("embed: sweep complete")
		return nil
	},
}
