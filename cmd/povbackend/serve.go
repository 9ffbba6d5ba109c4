package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/povbackend/tracebackend/internal/config"
	"github.com/povbackend/tracebackend/internal/logging"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend process",
	Long:  "Load configuration, start the metrics endpoint, and block until interrupted. No control-protocol listener is started.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe loads configuration, initialises logging and metrics, and
// blocks until SIGINT/SIGTERM. Wiring a live Backend requires a concrete
// Transport, Parser, Bounder and Intersector (spec.md §1's explicit
// external collaborators); this module defines their contracts
// (internal/collab) and every component built against them, but provides
// no production implementation of any of the four — an embedding
// deployment supplies those and constructs internal/backend.New itself.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Init(cfg.Log)
	logger := logging.Get().WithField("component", "serve")
	logger.Infof("configuration loaded, listen=%s maxScenes=%d maxViewsPerScene=%d", cfg.Listen, cfg.MaxScenes, cfg.MaxViewsPerScene)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Infof("metrics endpoint listening on %s%s", cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server stopped unexpectedly")
			}
		}()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("backend process ready, waiting for shutdown signal")
	<-sigCtx.Done()
	logger.Info("shutdown signal received")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("metrics server shutdown error")
		}
	}
	return nil
}
