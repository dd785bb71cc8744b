package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"cmpbridge/internal/consent/ports"
)

// Config controls the browser process.
type Config struct {
	Headless bool
	// ExecPath overrides the Chrome binary; empty finds one on PATH.
	ExecPath     string
	PumpInterval time.Duration
	Logger       *slog.Logger
}

// Browser owns one Chrome process; every Open gets a fresh tab.
type Browser struct {
	cfg         Config
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewBrowser starts Chrome. It lives until Close or until ctx ends.
func NewBrowser(ctx context.Context, cfg Config) (*Browser, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Browser{cfg: cfg, allocCancel: allocCancel, browserCtx: browserCtx, cancel: cancel}, nil
}

// Tab is an open page with the bridge installed.
type Tab struct {
	host   *Host
	cancel context.CancelFunc
}

// Host returns the tab's consent host.
func (t *Tab) Host() ports.Host {
	return t.host
}

// Close stops the host and closes the tab.
func (t *Tab) Close() error {
	t.host.Close()
	t.cancel()
	return nil
}

// Open navigates a new tab to url and installs the bridge. ctx bounds the
// navigation only; the tab lives until Close.
func (b *Browser) Open(ctx context.Context, url string) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, chromedp.Navigate(url)) }()
	select {
	case err := <-done:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("navigate %s: %w", url, err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	host, err := newHost(tabCtx, b.cfg.Logger, b.cfg.PumpInterval)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Tab{host: host, cancel: cancel}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}
