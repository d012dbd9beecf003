package cmd

import (
	"github.com/spf13/cobra"

	"github.com/planzy/server/internal/storage/postgres"
)

var (
	migratePath  string
	migrateSteps int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		if err := postgres.MigrateUp(cfg.Database.URL, migratePath); err != nil {
			return err
		}
		logger.Info().Msg("migrate: schema is up to date")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		if err := postgres.MigrateDown(cfg.Database.URL, migratePath, migrateSteps); err != nil {
			return err
		}
		logger.Info().Int("steps", migrateSteps).Msg("migrate: rolled back")
		return nil
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migratePath, "path", postgres.DefaultMigrationsPath, "path to migration files")
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
