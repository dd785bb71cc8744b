package main

import (
	"context"
	"log/slog"

	"cmpbridge/internal/consent/host/cdp"
	"cmpbridge/internal/platform/config"
	"cmpbridge/internal/probe"
)

// chromeBrowser adapts a cdp.Browser to probe.Browser.
type chromeBrowser struct {
	*cdp.Browser
}

func (b chromeBrowser) Open(ctx context.Context, url string) (probe.Page, error) {
	tab, err := b.Browser.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func startBrowser(ctx context.Context, cfg config.Chrome, logger *slog.Logger) (chromeBrowser, error) {
	b, err := cdp.NewBrowser(ctx, cdp.Config{
		Headless: cfg.Headless,
		ExecPath: cfg.ExecPath,
		Logger:   logger,
	})
	if err != nil {
		return chromeBrowser{}, err
	}
	return chromeBrowser{Browser: b}, nil
}
