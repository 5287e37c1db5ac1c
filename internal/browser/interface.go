// Package browser owns the browser process and hands out one tab per account. Two drivers
// are supported: chromedp against a system Chrome, and Playwright with its bundled
// Chromium. Neither applies any fingerprint or automation masking.
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
)

// Session is one isolated tab.
type Session interface {
	ID() string
	// Navigate loads url and waits for the configured post-load settle time.
	Navigate(ctx context.Context, url string) error
	// Document is the adapter the resolvers read and write through.
	Document() document.Adapter
	Close(ctx context.Context) error
}

// Manager creates sessions on a shared browser process.
type Manager interface {
	NewSession(ctx context.Context) (Session, error)
	// Shutdown waits for open sessions, bounded by ctx, then stops the browser.
	Shutdown(ctx context.Context) error
}

// NewManager starts the driver selected by cfg.Driver. opTimeout bounds every document
// operation on sessions it creates.
func NewManager(ctx context.Context, cfg config.BrowserConfig, opTimeout time.Duration, logger *zap.Logger) (Manager, error) {
	switch cfg.Driver {
	case config.DriverChromedp, "":
		return newChromiumManager(ctx, cfg, opTimeout, logger)
	case config.DriverPlaywright:
		return newPlaywrightManager(cfg, opTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// viewport returns the configured window size, falling back to 1366x900.
func viewport(cfg config.BrowserConfig) (int, int) {
	w, h := cfg.Viewport["width"], cfg.Viewport["height"]
	if w <= 0 {
		w = 1366
	}
	if h <= 0 {
		h = 900
	}
	return w, h
}

// settle pauses for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
