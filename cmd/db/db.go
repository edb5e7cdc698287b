package db

import (
	"github.com/spf13/cobra"

	"github/fastauth/go-migrate/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("db",
		newMigrate(),
	)
}
