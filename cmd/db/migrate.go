package db

import (
	"database/sql"

	// Postgres driver for database/sql
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/internal/config"
)

func newMigrate() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.DefaultServiceConfigFromEnv()
			if err != nil {
				return err
			}
			config.InitLogger(cfg.Logger)

			applied, err := applyMigrations(cfg.Queue.DatabaseURL, dir)
			if err != nil {
				return err
			}

			log.Info().Int("applied", applied).Msg("Database migrated")

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding the migration files")

	return cmd
}

func applyMigrations(databaseURL string, dir string) (int, error) {
	if databaseURL == "" {
		return 0, errors.New("queue.database_url is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open queue database")
	}
	defer func() { _ = db.Close() }()

	source := &migrate.FileMigrationSource{Dir: dir}

	applied, err := migrate.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return 0, errors.Wrap(err, "failed to apply migrations")
	}

	return applied, nil
}
