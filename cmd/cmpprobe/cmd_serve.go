package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	consentmetrics "cmpbridge/internal/consent/metrics"
	"cmpbridge/internal/platform/httpserver"
	"cmpbridge/internal/platform/logger"
	"cmpbridge/internal/platform/metrics"
	"cmpbridge/internal/probe"
	probehandler "cmpbridge/internal/probe/handler"
	httptransport "cmpbridge/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the probe API over HTTP",
	Long: `Starts one Chrome process and serves POST /v1/probes, GET /v1/regimes,
GET /health and GET /metrics. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	probeMetrics := metrics.New(reg)

	browser, err := startBrowser(ctx, cfg.Chrome, log)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer browser.Close()

	svc := probe.New(browser,
		probe.WithLogger(log),
		probe.WithMetrics(probeMetrics),
		probe.WithConsentMetrics(consentmetrics.NewWithRegisterer(reg)),
		probe.WithTimeout(cfg.Probe.Timeout),
		probe.WithPollInterval(cfg.Probe.PollInterval),
		probe.WithMaxFrameDepth(cfg.Probe.MaxFrameDepth),
		probe.WithRegimes(cfg.Probe.Regimes),
	)
	handler := probehandler.New(svc, log, probeMetrics, cfg.Probe.RequestsPerSecond, cfg.Probe.Burst)
	proxies, err := cfg.Proxies()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	router := httptransport.NewRouter(log, reg, proxies, handler)
	srv := httpserver.New(cfg.Addr, router, cfg.Probe.Timeout)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting cmpprobe", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
