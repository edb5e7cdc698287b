package probe

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLiveness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Check whether the process is able to run at all",
		Run: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool(verboseFlag)
			if verbose {
				fmt.Fprintln(os.Stdout, "alive")
			}
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "print the probe result")

	return cmd
}
