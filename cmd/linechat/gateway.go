package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/gateway"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd() *cobra.Command {
	var (
		addr       string
		relay      string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Bridge WebSocket browsers onto a relay",
		Long: `Serve a WebSocket endpoint on /ws. Each browser session is
connected to the relay as an ordinary TCP peer and exchanges
{"content": "..."} JSON messages.

Examples:
  linechat gateway
  linechat gateway --addr=:8080 --relay=127.0.0.1:7000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Gateway.Addr = addr
			}
			if cmd.Flags().Changed("relay") {
				cfg.Gateway.RelayAddr = relay
			}

			logger := newLogger(cfg)
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			gw := gateway.New(cfg.Gateway, gateway.WithLogger(logger), gateway.WithRegistry(reg))
			httpServer := gateway.CreateServer(cfg.Gateway.Addr, gw.Routes())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- gateway.StartServer(httpServer, logger) }()
			logger.Info("Gateway relaying", "relay", cfg.RelayAddress())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			// Hijacked WebSocket connections are not tracked by the HTTP
			// server, so sessions are closed separately.
			return errors.Join(
				gateway.ShutdownServer(httpServer, shutdownTimeout, logger),
				gw.Shutdown(shutdownTimeout),
			)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVarP(&relay, "relay", "r", "", "Relay address host:port (default from config)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	return cmd
}
