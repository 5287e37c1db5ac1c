package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
	"github.com/xkilldash9x/formsmith/internal/document/pwdoc"
)

const playwrightInstallTimeout = 5 * time.Minute

// playwrightManager handles the Playwright driver and browser lifecycle. Initialization
// is deferred until the first session is requested.
type playwrightManager struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	logger    *zap.Logger
	cfg       config.BrowserConfig
	opTimeout time.Duration

	wg sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

func newPlaywrightManager(cfg config.BrowserConfig, opTimeout time.Duration, logger *zap.Logger) *playwrightManager {
	m := &playwrightManager{
		logger:    logger.Named("browser_manager"),
		cfg:       cfg,
		opTimeout: opTimeout,
	}
	m.logger.Info("Browser manager created (initialization deferred).", zap.String("driver", config.DriverPlaywright))
	return m
}

// initialize starts the Playwright driver and launches Chromium.
func (m *playwrightManager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser...")

		if m.cfg.InstallDriver {
			if err := m.ensureInstallation(ctx); err != nil {
				m.initErr = err
				return
			}
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		m.pw = pw

		browser, err := pw.Chromium.Launch(launchOptions(m.cfg))
		if err != nil {
			_ = pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.browser = browser

		m.logger.Info("Browser manager initialized successfully.", zap.String("browser_version", browser.Version()))
	})
	return m.initErr
}

func (m *playwrightManager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...")
	installCtx, installCancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer installCancel()

	// Install blocks without a context.
	installErrChan := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			installErrChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		installErrChan <- nil
	}()

	select {
	case err := <-installErrChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	timeout := cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Timeout:  playwright.Float(float64(timeout.Milliseconds())),
		// Container-friendly defaults first so user args can override them.
		Args: append([]string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"}, cfg.Args...),
	}
	if cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecPath)
	}
	return opts
}

func (m *playwrightManager) NewSession(ctx context.Context) (Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	w, h := viewport(m.cfg)
	bctx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: w, Height: h},
		IgnoreHttpsErrors: playwright.Bool(m.cfg.IgnoreTLSErrors),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	id := uuid.NewString()
	logger := m.logger.With(zap.String("session_id", id))
	m.wg.Add(1)
	logger.Debug("Page opened.")
	return &playwrightSession{
		id:     id,
		cfg:    m.cfg,
		bctx:   bctx,
		page:   page,
		doc:    pwdoc.New(page, m.opTimeout, logger),
		logger: logger,
		done:   m.wg.Done,
	}, nil
}

// Shutdown gracefully closes the browser and stops the driver.
func (m *playwrightManager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")
	if m.pw == nil {
		m.logger.Info("Manager not fully initialized, skipping full shutdown sequence.")
		return nil
	}
	waitSessions(ctx, &m.wg, m.logger)

	var shutdownErr error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Error("Failed to close browser instance.", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if err := m.pw.Stop(); err != nil {
		m.logger.Error("Failed to stop Playwright driver.", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	}
	m.logger.Info("Browser manager shutdown complete.")
	return shutdownErr
}

type playwrightSession struct {
	id     string
	cfg    config.BrowserConfig
	bctx   playwright.BrowserContext
	page   playwright.Page
	doc    *pwdoc.Page
	logger *zap.Logger

	closeOnce sync.Once
	done      func()
}

func (s *playwrightSession) ID() string                 { return s.id }
func (s *playwrightSession) Document() document.Adapter { return s.doc }

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s.logger.Debug("Navigating.", zap.String("url", url))

	errc := make(chan error, 1)
	go func() {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("navigation to %s failed: %w", url, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("navigation to %s abandoned: %w", url, ctx.Err())
	}
	return settle(ctx, s.cfg.PostLoadWait)
}

func (s *playwrightSession) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		defer s.done()
		closed := make(chan error, 1)
		go func() { closed <- s.bctx.Close() }()
		select {
		case err = <-closed:
		case <-time.After(tabCloseGrace):
			err = fmt.Errorf("browser context close timed out after %s", tabCloseGrace)
		}
		s.logger.Debug("Page closed.", zap.Error(err))
	})
	return err
}
