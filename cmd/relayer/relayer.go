// Package relayer implements the live relayer HTTP service command.
package relayer

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/internal/api"
	"github/fastauth/go-migrate/internal/api/router"
	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/config"
	relaysvc "github/fastauth/go-migrate/internal/relayer"
	"github/fastauth/go-migrate/internal/rpc"
)

const shutdownTimeout = 30 * time.Second

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "relayer",
		Short: "Run the live meta transaction relayer server",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := config.DefaultServiceConfigFromEnv()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to load config")
			}
			config.InitLogger(cfg.Logger)

			runServer(cfg)
		},
	}
}

func runServer(cfg config.Service) {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	endpointPool, err := rpc.NewEndpointPool(cfg.RPC.EndpointURLs, cfg.RPC.BaseWait, cfg.RPC.BackoffMultiplier)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize RPC endpoint pool")
	}

	client := rpc.NewClient(endpointPool, cfg.RPC.RetryCount, cfg.RPC.RequestTimeout)
	provider := chain.NewProvider(client, cfg.RPC.AccountIndexURL, cfg.RPC.BlockHeightMargin, cfg.RPC.RequestTimeout)

	signerPool, err := relaysvc.NewSignerPool(cfg.Relayer.Signers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize signer pool")
	}

	s := api.NewServer(cfg)
	s.Chain = provider
	s.Relayer = relaysvc.NewService(provider, signerPool, cfg.Relayer.BlockHashTTL)

	router.Init(s)

	go func() {
		if err := s.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Str("listen_address", cfg.Relayer.ListenAddress).Msg("Relayer server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to gracefully shut down server")
	}
}
