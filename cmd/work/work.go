// Package work implements the operator entry point that runs the stage
// worker pools.
package work

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/internal/config"
	"github/fastauth/go-migrate/internal/pipeline"
)

func New() *cobra.Command {
	var stages []string

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run migration stage worker pools",
		Long:  "Starts worker pools for the selected pipeline stages (or \"all\") and runs until interrupted. In-flight jobs finish; lost jobs are requeued by the visibility timeout.",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return service.Work(ctx, stages)
		},
	}

	cmd.Flags().StringSliceVar(&stages, "stages", []string{pipeline.StageAll}, "stage queues to work, or \"all\"")

	return cmd
}
