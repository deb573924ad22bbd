package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via
// -ldflags "-X github.com/xkilldash9x/webpilot/cmd.Version=...".
var Version = "0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the webpilot version",
		// Printing the version must work even with a broken config file.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webpilot version %s\n", Version)
		},
	}
}
