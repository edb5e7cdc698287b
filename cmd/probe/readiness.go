package probe

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/config"
	"github/fastauth/go-migrate/internal/pipeline"
	"github/fastauth/go-migrate/internal/rpc"
)

const readinessTimeout = 5 * time.Second

func newReadiness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Check whether the queue database and the chain RPC are reachable",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := config.DefaultServiceConfigFromEnv()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to load config")
			}
			config.InitLogger(cfg.Logger)

			service, err := pipeline.NewService(cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize pipeline service")
			}
			defer func() { _ = service.Close() }()

			if err := service.WaitHealthy(cmd.Context(), readinessTimeout); err != nil {
				log.Fatal().Err(err).Msg("Readiness probe failed")
			}

			pool, err := rpc.NewEndpointPool(cfg.RPC.EndpointURLs, cfg.RPC.BaseWait, cfg.RPC.BackoffMultiplier)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize RPC endpoint pool")
			}

			client := rpc.NewClient(pool, 0, readinessTimeout)
			provider := chain.NewProvider(client, cfg.RPC.AccountIndexURL, cfg.RPC.BlockHeightMargin, readinessTimeout)

			if _, err := provider.MaxBlockHeight(cmd.Context()); err != nil {
				log.Fatal().Err(err).Msg("Chain RPC is unreachable")
			}

			verbose, _ := cmd.Flags().GetBool(verboseFlag)
			if verbose {
				fmt.Fprintln(os.Stdout, "ready")
			}
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "print the probe result")

	return cmd
}
