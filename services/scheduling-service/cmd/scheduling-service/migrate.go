package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(config.String("SERVICE_NAME", defaultServiceName))
			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := db.Open(ctx, dbURL, db.PoolConfigFromEnv())
			if err != nil {
				return fmt.Errorf("db connection failed: %w", err)
			}
			defer pool.Close()

			migrations, err := storage.Migrations()
			if err != nil {
				return err
			}
			applied, err := pool.Migrate(ctx, migrations)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "applied", applied, "known", len(migrations))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall migration timeout")
	return cmd
}
