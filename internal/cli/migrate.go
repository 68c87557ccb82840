package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"poll-quiz-service/internal/config"
	"poll-quiz-service/internal/infra/postgres"
	"poll-quiz-service/internal/logger"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run journal database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	applied, err := postgres.Migrate(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	log.Info().Strs("applied", applied).Msg("migrations applied")
	return nil
}
