package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cmpbridge/internal/platform/logger"
	"cmpbridge/internal/probe"
)

var probeFlags struct {
	url     string
	regimes []string
	timeout time.Duration
	output  string
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Load one page and report its consent state",
	RunE:  runProbe,
}

func init() {
	f := probeCmd.Flags()
	f.StringVar(&probeFlags.url, "url", "", "Page URL (required)")
	f.StringSliceVar(&probeFlags.regimes, "regime", nil, "Regime to query; repeatable (default: all configured)")
	f.DurationVar(&probeFlags.timeout, "timeout", 0, "Wait budget for CMP answers (default from config)")
	f.StringVarP(&probeFlags.output, "output", "o", outputJSON, "Output format: json or yaml")

	_ = probeCmd.MarkFlagRequired("url")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	browser, err := startBrowser(ctx, cfg.Chrome, log)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer browser.Close()

	svc := probe.New(browser,
		probe.WithLogger(log),
		probe.WithTimeout(cfg.Probe.Timeout),
		probe.WithPollInterval(cfg.Probe.PollInterval),
		probe.WithMaxFrameDepth(cfg.Probe.MaxFrameDepth),
		probe.WithRegimes(cfg.Probe.Regimes),
	)

	report, err := svc.Probe(ctx, probe.Request{
		URL:     probeFlags.url,
		Regimes: probeFlags.regimes,
		Timeout: probeFlags.timeout,
	})
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), probeFlags.output, report)
}
