package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
	"github.com/xkilldash9x/formsmith/internal/document/cdpdoc"
)

const tabCloseGrace = 10 * time.Second

// chromiumManager drives a system Chrome through chromedp. All tabs derive from one
// allocator context.
type chromiumManager struct {
	logger    *zap.Logger
	cfg       config.BrowserConfig
	opTimeout time.Duration

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	wg sync.WaitGroup
}

func newChromiumManager(ctx context.Context, cfg config.BrowserConfig, opTimeout time.Duration, logger *zap.Logger) (*chromiumManager, error) {
	m := &chromiumManager{
		logger:    logger.Named("browser_manager"),
		cfg:       cfg,
		opTimeout: opTimeout,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

// launchBrowser starts the process and confirms it answers before any session is created.
func (m *chromiumManager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocatorOptions(m.cfg)...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	startup := m.cfg.StartupTimeout
	if startup <= 0 {
		startup = 30 * time.Second
	}
	testCtx, cancelTest := context.WithTimeout(allocCtx, startup)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// allocatorOptions maps the browser config onto Chrome flags. chromedp's defaults are kept
// as they are, including enable-automation.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	w, h := viewport(cfg)
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.WindowSize(w, h),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Containers on Linux usually lack the sandbox and a large /dev/shm.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

func (m *chromiumManager) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(m.allocatorCtx)
	// The first Run allocates the target.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	id := uuid.NewString()
	logger := m.logger.With(zap.String("session_id", id))
	m.wg.Add(1)
	logger.Debug("Tab opened.")
	return &chromiumSession{
		id:        id,
		cfg:       m.cfg,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		doc:       cdpdoc.New(tabCtx, m.opTimeout, logger),
		logger:    logger,
		done:      m.wg.Done,
	}, nil
}

func (m *chromiumManager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")
	waitSessions(ctx, &m.wg, m.logger)

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}

// waitSessions blocks until every session has closed or ctx ends.
func waitSessions(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("All sessions have completed.")
	case <-ctx.Done():
		logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}
}

type chromiumSession struct {
	id        string
	cfg       config.BrowserConfig
	tabCtx    context.Context
	tabCancel context.CancelFunc
	doc       *cdpdoc.Page
	logger    *zap.Logger

	closeOnce sync.Once
	done      func()
}

func (s *chromiumSession) ID() string                 { return s.id }
func (s *chromiumSession) Document() document.Adapter { return s.doc }

func (s *chromiumSession) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runCtx, runCancel := cdpdoc.CombineContext(s.tabCtx, navCtx)
	defer runCancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return settle(ctx, s.cfg.PostLoadWait)
}

// Close shuts the tab. The caller's context is often already expired at this point, so
// cleanup runs on a detached context with its own grace period.
func (s *chromiumSession) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		defer s.done()
		cleanupCtx, cancel := context.WithTimeout(cdpdoc.Detach(ctx), tabCloseGrace)
		defer cancel()

		closed := make(chan error, 1)
		go func() { closed <- chromedp.Cancel(s.tabCtx) }()
		select {
		case err = <-closed:
		case <-cleanupCtx.Done():
			err = fmt.Errorf("tab close timed out: %w", cleanupCtx.Err())
		}
		s.tabCancel()
		s.logger.Debug("Tab closed.", zap.Error(err))
	})
	return err
}
