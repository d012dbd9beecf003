package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/planzy/server/internal/config"
)

var (
	// Global flags
	logLevel   string
	logFormat  string
	sourcesDir string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "server",
		Short: "Planzy server - event aggregation and recommendation backend",
		Long: `Planzy server aggregates events from Polish ticketing portals, enriches
their venues through the Google Places API, vectorizes them with OpenAI
embeddings, and answers natural-language recommendation queries by
similarity search.

Pipeline stages are exposed as subcommands (scrape, embed, enrich,
recommend); the worker subcommand runs them all on a schedule.`,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")
	rootCmd.PersistentFlags().StringVar(&sourcesDir, "sources-dir", "", "directory with YAML source definitions (default: configs/sources)")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment configuration and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if sourcesDir != "" {
		cfg.Scraper.SourcesDir = sourcesDir
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return config.NewLogger(cfg.Logging)
}
