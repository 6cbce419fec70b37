package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lumen-agent/internal/adapter/gateway"
)

func buildServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway",
		Long: `Serve the agent over a websocket gateway at /ws.

Clients receive a snapshot of recent events on connect followed by the live
event stream, and drive the agent with chat.send, chat.stop and the other
RPC methods. /healthz and the Prometheus endpoint are served alongside.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Gateway.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.watchSkills(ctx)

			srv, sessions := newGateway(a)
			if err := a.startScheduler(ctx, sessions); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gateway listening on %s\n", cfg.Gateway.Addr)
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("gateway stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides gateway.addr)")
	return cmd
}

func newGateway(a *app) (*gateway.Server, *gateway.Sessions) {
	cfg := a.cfg
	opts := gateway.Options{
		Addr:       cfg.Gateway.Addr,
		Auth:       gateway.NewStaticTokenAuth(cfg.Gateway.Tokens),
		Metrics:    a.metrics,
		RatePerMin: cfg.Gateway.RatePerMin,
		Burst:      cfg.Gateway.Burst,
		Logger:     a.logger,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsAPI = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
		opts.MetricsPath = cfg.Metrics.Path
	}
	srv := gateway.NewServer(a.bus, opts)
	sessions := gateway.RegisterDefaultHandlers(srv, gateway.HandlerDeps{
		Agent:              a.agent,
		Router:             a.router,
		Bus:                a.bus,
		Tools:              a.toolContext(nil),
		MaxHistoryMessages: cfg.Agent.MaxHistoryMessages,
		Logger:             a.logger,
	})
	return srv, sessions
}
