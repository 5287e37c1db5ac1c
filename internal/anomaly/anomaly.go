// Package anomaly detects challenge pages (CAPTCHA walls, "unusual activity" screens)
// and suspends a session until a human clears them or a ceiling elapses. It never
// interacts with the challenge.
package anomaly

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
	"github.com/xkilldash9x/formsmith/internal/observability"
)

// Predicate reports whether a challenge is currently shown.
type Predicate interface {
	Present(ctx context.Context) (bool, error)
}

// Detector matches visible challenge elements by selector and challenge phrases in the
// rendered page text.
type Detector struct {
	doc        document.Adapter
	selectors  []string
	indicators []string
}

// NewDetector builds a detector from the configured selectors and text indicators.
func NewDetector(doc document.Adapter, cfg config.AnomalyConfig) *Detector {
	indicators := make([]string, 0, len(cfg.TextIndicators))
	for _, s := range cfg.TextIndicators {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			indicators = append(indicators, s)
		}
	}
	return &Detector{doc: doc, selectors: cfg.Selectors, indicators: indicators}
}

// Present checks selectors first, then the page text.
func (d *Detector) Present(ctx context.Context) (bool, error) {
	if len(d.selectors) > 0 {
		snap, err := d.doc.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		for _, sel := range d.selectors {
			handles, err := d.doc.Query(ctx, sel)
			if err != nil {
				return false, err
			}
			for _, h := range handles {
				if snap.Visible(h) {
					return true, nil
				}
			}
		}
	}
	if len(d.indicators) == 0 {
		return false, nil
	}
	text, err := d.doc.PageText(ctx)
	if err != nil {
		return false, err
	}
	text = strings.ToLower(text)
	for _, ind := range d.indicators {
		if strings.Contains(text, ind) {
			return true, nil
		}
	}
	return false, nil
}

// Waiter polls a predicate at a fixed interval up to a ceiling.
type Waiter struct {
	predicate Predicate
	interval  time.Duration
	ceiling   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewWaiter returns a waiter. metrics may be nil.
func NewWaiter(p Predicate, interval, ceiling time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Waiter {
	return &Waiter{
		predicate: p,
		interval:  interval,
		ceiling:   ceiling,
		logger:    logger.Named("anomaly"),
		metrics:   metrics,
	}
}

// Wait returns Cleared as soon as the predicate is false, DeadlineExceeded when the
// ceiling elapses with the challenge still shown, and StillPresent when ctx ends first.
// Predicate errors count as "not present" so a flaky check never stalls a session.
func (w *Waiter) Wait(ctx context.Context) schemas.AnomalyOutcome {
	outcome := w.wait(ctx)
	w.metrics.RecordAnomaly(outcome)
	return outcome
}

func (w *Waiter) wait(ctx context.Context) schemas.AnomalyOutcome {
	if !w.present(ctx) {
		return schemas.AnomalyCleared
	}
	w.logger.Warn("Challenge detected; waiting for it to be cleared by hand.",
		zap.Duration("interval", w.interval), zap.Duration("ceiling", w.ceiling))

	deadline := time.NewTimer(w.ceiling)
	defer deadline.Stop()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return schemas.AnomalyStillPresent
		case <-deadline.C:
			w.logger.Warn("Challenge still present at ceiling; continuing.")
			return schemas.AnomalyDeadlineExceeded
		case <-ticker.C:
			if !w.present(ctx) {
				w.logger.Info("Challenge cleared.")
				return schemas.AnomalyCleared
			}
		}
	}
}

func (w *Waiter) present(ctx context.Context) bool {
	ok, err := w.predicate.Present(ctx)
	if err != nil {
		w.logger.Debug("Challenge check failed.", zap.Error(err))
		return false
	}
	return ok
}
