package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the loadstone CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadstone",
		Short: "Loadstone - a native plugin host runtime",
		Long: `Loadstone discovers, installs, loads, and supervises native
shared-library plugins: a lifecycle state machine, a cross-platform
dynamic loader, and a message/callback bridge between host and plugin.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	addConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewInstallCmd())
	cmd.AddCommand(NewEnableCmd())
	cmd.AddCommand(NewDisableCmd())
	cmd.AddCommand(NewSendCmd())
	cmd.AddCommand(NewUpdateCmd())
	cmd.AddCommand(NewUninstallCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}
