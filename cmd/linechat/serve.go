package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/gateway"
)

func serveCmd() *cobra.Command {
	var (
		port        uint16
		timeout     float64
		metricsAddr string
		configPath  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		Long: `Run the chat relay until interrupted.

Every message a peer sends is relayed to the other peers and logged.

Examples:
  linechat serve
  linechat serve --port=7000 --metrics-addr=:9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("timeout") && timeout > 0 {
				cfg.Server.PollTimeout = time.Duration(timeout * float64(time.Second))
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg.Server.Port, cfg.Server.PollTimeout, cfg.Server.MetricsAddr, newLogger(cfg))
		},
	}

	cmd.Flags().Uint16VarP(&port, "port", "p", 0, "TCP port to listen on (default from config)")
	cmd.Flags().Float64VarP(&timeout, "timeout", "t", 0, "Seconds each update waits for events (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the /metrics listener; empty disables it")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	return cmd
}

func runServe(ctx context.Context, port uint16, pollTimeout time.Duration, metricsAddr string, logger *slog.Logger) error {
	opts := []chat.Option{chat.WithLogger(logger)}

	var metricsServer *http.Server
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, chat.WithMetrics(chat.NewMetrics(reg)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = gateway.CreateServer(metricsAddr, mux)
		go func() {
			if err := gateway.StartServer(metricsServer, logger); err != nil {
				logger.Error("Metrics listener failed", "error", err)
			}
		}()
		defer func() { _ = gateway.ShutdownServer(metricsServer, 5*time.Second, logger) }()
	}

	srv := chat.New(opts...)
	if err := srv.Listen(port); err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	for ctx.Err() == nil {
		err := srv.Update(pollTimeout.Seconds())
		if err != nil && !errors.Is(err, chat.ErrTimeout) {
			return err
		}
		for {
			msg, ok := srv.PopNext()
			if !ok {
				break
			}
			logger.Info("Message", "payload", msg.String(), "peers", srv.PeerCount())
		}
	}

	logger.Info("Relay shutting down", "peers", srv.PeerCount())
	return nil
}
