package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loadstone/loadstone/internal/host"
	"github.com/loadstone/loadstone/internal/logging"
)

// withHost builds a host from the resolved configuration, runs fn, and
// releases the host.
func withHost(cmd *cobra.Command, fn func(ctx context.Context, h *host.Host) error) error {
	cfg, err := loadAppConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logging.SetDefault("loadstone", version, cfg.LogFormat)

	h, err := host.New(cfg.Host)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(cmd.Context()) }()

	return fn(cmd.Context(), h)
}

func printPlugins(cmd *cobra.Command, infos []host.Info) {
	if len(infos) == 0 {
		cmd.Println("no plugins tracked")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tSTATE\tLAST ERROR")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.ID, info.Version, info.State, info.LastError)
	}
	_ = w.Flush()
}

// NewScanCmd creates the scan subcommand.
func NewScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the plugins directory and reconcile tracked state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				if err := h.ScanInstalled(ctx); err != nil {
					return err
				}
				printPlugins(cmd, h.List())
				return nil
			})
		},
	}
}

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked plugins and their lifecycle state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHost(cmd, func(_ context.Context, h *host.Host) error {
				printPlugins(cmd, h.List())
				return nil
			})
		},
	}
}

// NewInstallCmd creates the install subcommand.
func NewInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <id> <version>",
		Short: "Resolve, download, verify, and install a plugin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				if err := h.InstallPlugin(ctx, args[0], args[1]); err != nil {
					return err
				}
				cmd.Printf("installed %s %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

// NewEnableCmd creates the enable subcommand.
func NewEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Load a plugin and run its initializer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				if err := h.ScanInstalled(ctx); err != nil {
					return err
				}
				if err := h.Enable(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("enabled %s\n", args[0])
				return nil
			})
		},
	}
}

// NewDisableCmd creates the disable subcommand.
func NewDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Tear down and unload a plugin, retaining its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				if err := h.Disable(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("disabled %s\n", args[0])
				return nil
			})
		},
	}
}

// NewSendCmd creates the send subcommand.
func NewSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <id> <verb> [payload]",
		Short: "Dispatch a message to an enabled plugin and print its reply",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				if err := h.ScanInstalled(ctx); err != nil {
					return err
				}
				if err := h.Enable(ctx, args[0]); err != nil {
					return err
				}
				var payload []byte
				if len(args) == 3 {
					payload = []byte(args[2])
				}
				reply, err := h.SendMessage(ctx, args[0], args[1], payload)
				if err != nil {
					return err
				}
				cmd.Println(string(reply))
				return h.Disable(ctx, args[0])
			})
		},
	}
}

// NewUpdateCmd creates the update subcommand.
func NewUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update every enabled plugin with a newer registry version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				report, err := h.UpdateAll(ctx)
				if err != nil {
					return err
				}
				if len(report.Outcomes) == 0 {
					cmd.Println("no enabled plugins to update")
					return nil
				}
				for _, o := range report.Outcomes {
					switch o.Status {
					case host.UpdateStatusUpdated:
						cmd.Printf("%s: %s -> %s\n", o.ID, o.From, o.To)
					case host.UpdateStatusUpToDate:
						cmd.Printf("%s: up to date (%s)\n", o.ID, o.From)
					case host.UpdateStatusFailed:
						cmd.Printf("%s: FAILED: %s\n", o.ID, o.Error)
					}
				}
				return nil
			})
		},
	}
}

// NewUninstallCmd creates the uninstall subcommand.
func NewUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <id>",
		Short: "Delete a plugin's files and remove its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHost(cmd, func(ctx context.Context, h *host.Host) error {
				if err := h.Uninstall(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("uninstalled %s\n", args[0])
				return nil
			})
		},
	}
}
