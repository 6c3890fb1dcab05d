package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...commands.Version=...".
var Version = "dev"

// RootCmd is the root command for the facilitator.
var RootCmd = &cobra.Command{
	Use:           "facilitator",
	Short:         "x402 payment facilitator for Hive HBD transfers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// VersionCmd prints the version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}
