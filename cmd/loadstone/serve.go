package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loadstone/loadstone/internal/host"
	"github.com/loadstone/loadstone/internal/logging"
	"github.com/loadstone/loadstone/internal/observability"
)

// NewServeCmd creates the serve subcommand: a long-running host that
// watches the plugins directory, keeps enabled plugins loaded, and serves
// metrics.
func NewServeCmd() *cobra.Command {
	var enableAll bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logging.SetDefault("loadstone", version, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var opts []host.Option
			var obs *observability.Server
			if cfg.MetricsAddr != "" {
				obs = observability.NewServer(cfg.MetricsAddr, nil)
				if _, err := obs.Start(); err != nil {
					return err
				}
				defer func() { _ = obs.Stop(context.Background()) }()
				opts = append(opts, host.WithMetrics(obs.Metrics()))
			}

			h, err := host.New(cfg.Host, opts...)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close(context.Background()) }()

			if err := h.ScanInstalled(ctx); err != nil {
				return err
			}

			if enableAll {
				for _, info := range h.List() {
					if info.State != host.StateInstalled && info.State != host.StateDisabled {
						continue
					}
					if err := h.Enable(ctx, info.ID); err != nil {
						cmd.PrintErrf("enable %s: %v\n", info.ID, err)
					}
				}
			}

			if err := h.WatchPlugins(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&enableAll, "enable-all", false,
		"enable every installed plugin at startup")
	return cmd
}
