package main

import (
	"fmt"

	"github.com/locallibrary/catalog/internal/config"
	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
			defer log.Sync()

			database, err := db.Connect(cfg.DBDriver, cfg.DSN())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			log.Info("Running database migrations...", zap.String("driver", cfg.DBDriver))
			if err := db.RunMigrations(database); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			log.Info("Migrations complete")
			return nil
		},
	}
}
