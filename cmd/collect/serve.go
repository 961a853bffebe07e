package main

import (
	"os/signal"
	"syscall"

	"github.com/pevans/collect/scheduler"
	"github.com/pevans/collect/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var addr string
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server",
		Long:  "serve the node API, the interactive stage pages and /metrics, and optionally run scheduled nodes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("scheduler") {
				cfg.Scheduler.Enabled = withScheduler
			}

			if cfg.Scheduler.Enabled {
				sched := scheduler.New(a.nodes, a.controller, logger)
				if err := sched.Start(ctx, cfg.Scheduler.SyncInterval); err != nil {
					return err
				}
				defer sched.Stop()
				logger.Info("scheduler started", zap.Int("nodes", len(sched.Schedules())))
			}

			srv := server.New(server.Deps{
				Controller: a.controller,
				Nodes:      a.nodes,
				Staging:    a.staging,
				Content:    a.content,
				Metrics:    a.metrics,
				Logger:     logger,
			}, cfg.Server)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&withScheduler, "scheduler", false, "run nodes on their cron schedule")
	return cmd
}
