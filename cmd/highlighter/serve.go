package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/heimdex/highlighter/internal/api"
	"github.com/heimdex/highlighter/internal/config"
)

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting highlighter",
		"version", config.Version,
		"transport", a.cfg.Transport(),
		"control_root", a.cfg.ControlRoot(),
		"local_root", a.cfg.LocalRoot(),
		"highlights_dir", a.cfg.HighlightsDir(),
	)

	probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if avail, err := a.avail.Refresh(probeCtx); err != nil {
		a.logger.Warn("initial worker probe failed", "error", err)
	} else {
		a.logger.Info("worker availability", "reachable", avail.Reachable, "endpoints", len(avail.Endpoints))
	}
	probeCancel()

	apiServer := api.NewServer(api.ServerConfig{
		Port:           a.cfg.Port(),
		Coordinator:    a.coord,
		Sink:           a.sink,
		Transport:      a.cfg.Transport(),
		MetricsHandler: promhttp.Handler(),
		Logger:         a.logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			a.logger.Error("HTTP server error", "error", err)
			return err
		}
	}

	a.logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown HTTP server", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
