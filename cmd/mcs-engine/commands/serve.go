package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mcs-engine/internal/mcp"
	"mcs-engine/internal/metrics"
	"mcs-engine/internal/runner"
)

func (a *app) newServeCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := a.cfg.MetricsAddr
			if cmd.Flags().Changed("metrics-addr") {
				addr = metricsAddr
			}
			return a.serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address, e.g. :9090 (default MCS_METRICS_ADDR)")
	return cmd
}

func (a *app) serve(ctx context.Context, metricsAddr string) error {
	// The archive is optional for the server; without it save requests fail.
	st, err := a.openStore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Run archive unavailable, history tools disabled")
		st = nil
	} else {
		defer st.Close()
		log.Info().Str("path", st.Path()).Msg("Run archive ready")
	}

	if metricsAddr != "" {
		stop := startMetrics(metricsAddr)
		defer stop()
	}

	return mcp.NewServer(runner.New(a.cfg, st)).Serve(ctx)
}

// startMetrics serves /metrics in the background and returns its shutdown.
func startMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
