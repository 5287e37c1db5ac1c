// Package worker runs the per-account workflow across a bounded, rate-limited pool of
// browser sessions.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/anomaly"
	"github.com/xkilldash9x/formsmith/internal/browser"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/observability"
	"github.com/xkilldash9x/formsmith/internal/orchestrator"
	"github.com/xkilldash9x/formsmith/internal/resolve"
	"github.com/xkilldash9x/formsmith/internal/validate"
)

// SessionFactory hands out browser sessions. browser.Manager implements it.
type SessionFactory interface {
	NewSession(ctx context.Context) (browser.Session, error)
}

// Sink receives each finished account. Calls are serialized by the pool.
type Sink func(schemas.AccountResult)

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics records account, form, field and anomaly outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(p *Pool) { p.runID = id }
}

// WithSleep replaces the waits between steps, mostly for tests.
func WithSleep(sleep orchestrator.SleepFunc) Option {
	return func(p *Pool) { p.sleep = sleep }
}

// Pool processes accounts concurrently, one session per account.
type Pool struct {
	cfg      config.Interface
	logger   *zap.Logger
	sessions SessionFactory
	metrics  *observability.Metrics
	limiter  *rate.Limiter
	sleep    orchestrator.SleepFunc
	runID    string
}

// NewPool initializes a pool over the given session factory.
func NewPool(cfg config.Interface, logger *zap.Logger, sessions SessionFactory, opts ...Option) (*Pool, error) {
	if cfg == nil || logger == nil || sessions == nil {
		return nil, fmt.Errorf("cannot initialize worker pool with nil dependencies")
	}
	if cfg.Form().URL == "" {
		return nil, fmt.Errorf("form.url is not configured")
	}

	limit := rate.Inf
	if perMinute := cfg.Engine().RatePerMinute; perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	p := &Pool{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "worker")),
		sessions: sessions,
		limiter:  rate.NewLimiter(limit, 1),
		sleep:    orchestrator.Sleep,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunID identifies this batch in reports.
func (p *Pool) RunID() string { return p.runID }

// Run processes every account and hands results to sink as they finish. Account failures
// are reported through their results; Run only errors when ctx ends.
func (p *Pool) Run(ctx context.Context, accts []schemas.Account, sink Sink) error {
	concurrency := p.cfg.Engine().Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	p.logger.Info("Starting batch.",
		zap.String("run_id", p.runID),
		zap.Int("accounts", len(accts)),
		zap.Int("concurrency", concurrency))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	emit := func(r schemas.AccountResult) {
		mu.Lock()
		defer mu.Unlock()
		if sink != nil {
			sink(r)
		}
	}

	for _, acct := range accts {
		if err := p.limiter.Wait(groupCtx); err != nil {
			break
		}
		acct := acct
		g.Go(func() error {
			emit(p.Process(groupCtx, acct))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	p.logger.Info("Batch finished.", zap.String("run_id", p.runID))
	return nil
}

// Process runs one account end to end in its own session. It never returns an error;
// failures land in the result.
func (p *Pool) Process(ctx context.Context, acct schemas.Account) schemas.AccountResult {
	started := time.Now()
	res := schemas.AccountResult{
		RunID:     p.runID,
		Email:     acct.Email,
		Country:   acct.Country,
		StartedAt: started,
	}
	if timeout := p.cfg.Engine().AccountTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := p.process(ctx, acct, &res)
	res.Duration = time.Since(started)
	if err != nil {
		res.Error = err.Error()
	}
	status := res.Status()
	p.metrics.RecordAccount(status, res.Duration)

	logger := p.logger.With(zap.String("email", acct.Email), zap.String("status", status))
	if err != nil {
		logger.Error("Account failed.", zap.Error(err))
	} else {
		logger.Info("Account finished.", zap.Duration("duration", res.Duration))
	}
	return res
}

func (p *Pool) process(ctx context.Context, acct schemas.Account, res *schemas.AccountResult) error {
	session, err := p.sessions.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	res.SessionID = session.ID()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			p.logger.Debug("Session close failed.", zap.String("session_id", res.SessionID), zap.Error(err))
		}
	}()

	if err := session.Navigate(ctx, p.cfg.Form().URL); err != nil {
		return fmt.Errorf("failed to load form: %w", err)
	}
	doc := session.Document()
	logger := p.logger.With(zap.String("session_id", res.SessionID))

	if anomalyCfg := p.cfg.Anomaly(); anomalyCfg.Enabled {
		waiter := anomaly.NewWaiter(anomaly.NewDetector(doc, anomalyCfg), anomalyCfg.Interval, anomalyCfg.Ceiling, logger, p.metrics)
		res.Anomaly = waiter.Wait(ctx)
		if res.Anomaly == schemas.AnomalyStillPresent {
			return fmt.Errorf("challenge page still present: %w", context.Cause(ctx))
		}
	}

	plan, err := resolve.NewPlan(acct)
	if err != nil {
		return err
	}
	engine := resolve.New(doc, p.cfg.Resolver(), logger)
	orch, err := orchestrator.New(p.cfg.Resolver(), logger, engine, validate.New(doc, logger),
		orchestrator.WithMetrics(p.metrics), orchestrator.WithSleep(p.sleep))
	if err != nil {
		return err
	}
	outcome, err := orch.Run(ctx, plan)
	res.Outcome = outcome
	if err != nil {
		return err
	}

	if !p.cfg.Form().Submit {
		return nil
	}
	return p.submit(ctx, doc, logger, res)
}
