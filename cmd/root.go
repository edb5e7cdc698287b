package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/cmd/db"
	"github/fastauth/go-migrate/cmd/probe"
	"github/fastauth/go-migrate/cmd/relayer"
	"github/fastauth/go-migrate/cmd/seed"
	"github/fastauth/go-migrate/cmd/work"
	"github/fastauth/go-migrate/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "app",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

Migrates legacy MPC custodial users onto deterministic federated-identity
keys and relays signed meta transactions. Requires configuration through
ENV (prefix FASTAUTH_).`, config.ModuleName),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// attach the subcommands
	rootCmd.AddCommand(
		db.New(),
		probe.New(),
		relayer.New(),
		seed.New(),
		work.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
