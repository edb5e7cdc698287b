// Package seed implements the operator entry point that reads the legacy
// identity export and enqueues one intake job per identity.
package seed

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/internal/config"
	"github/fastauth/go-migrate/internal/pipeline"
)

func New() *cobra.Command {
	var exportPath string
	var skip int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the migration pipeline from a legacy identity export",
		Long:  "Streams a JSONL identity export and enqueues one intake job per record. Use --skip to restart a partially seeded export.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.DefaultServiceConfigFromEnv()
			if err != nil {
				return err
			}
			config.InitLogger(cfg.Logger)

			service, err := pipeline.NewService(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := service.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close pipeline service")
				}
			}()

			export, err := os.Open(exportPath)
			if err != nil {
				return errors.Wrapf(err, "failed to open identity export %q", exportPath)
			}
			defer func() { _ = export.Close() }()

			seeded, err := service.Seed(cmd.Context(), export, skip)
			if err != nil {
				return err
			}

			log.Info().Int("seeded", seeded).Msg("Seed complete")

			return nil
		},
	}

	cmd.Flags().StringVar(&exportPath, "export", "", "path to the JSONL identity export (required)")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of export lines to skip (restart offset)")
	_ = cmd.MarkFlagRequired("export")

	return cmd
}
