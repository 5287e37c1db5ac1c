package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/accounts"
	"github.com/xkilldash9x/formsmith/internal/browser"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/observability"
	"github.com/xkilldash9x/formsmith/internal/reporting"
	"github.com/xkilldash9x/formsmith/internal/worker"
)

func newFillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill the configured form once per account record",
		Long: `Opens one browser tab per account, resolves and writes every profile field,
validates the mandatory ones, repairs what failed, and optionally submits.
Challenge pages are never interacted with: the run waits for them to be cleared by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runFill(cmd.Context(), cfg, cmd.ErrOrStderr(), observability.GetLogger())
		},
	}

	flags := cmd.Flags()
	flags.String("url", "", "form page URL")
	flags.StringP("accounts", "a", "", "accounts file (JSON array)")
	flags.IntP("concurrency", "j", 1, "number of accounts processed at once")
	flags.Float64("rate", 0, "maximum account starts per minute (0 means unlimited)")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("driver", config.DriverChromedp, "browser driver: chromedp or playwright")
	flags.Bool("submit", false, "click the save control after resolution")
	flags.String("strictness", string(config.StrictnessBalanced), "resolver strictness: strict, balanced or aggressive")
	flags.StringP("output", "o", "", "report file (default stdout)")
	flags.StringP("format", "f", "", "report format: jsonl, json or text")
	flags.Bool("metrics", false, "serve Prometheus metrics during the run")

	bindFlag(flags, "url", "form.url")
	bindFlag(flags, "accounts", "engine.accounts_file")
	bindFlag(flags, "concurrency", "engine.concurrency")
	bindFlag(flags, "rate", "engine.rate_per_minute")
	bindFlag(flags, "headless", "browser.headless")
	bindFlag(flags, "driver", "browser.driver")
	bindFlag(flags, "submit", "form.submit")
	bindFlag(flags, "strictness", "resolver.strictness")
	bindFlag(flags, "output", "engine.report_file")
	bindFlag(flags, "format", "engine.report_format")
	bindFlag(flags, "metrics", "metrics.enabled")
	return cmd
}

// runFill loads the accounts, starts the browser and streams results into the report.
func runFill(ctx context.Context, cfg *config.Config, status io.Writer, logger *zap.Logger) error {
	if cfg.Form().URL == "" {
		return errors.New("no form URL configured: set form.url or pass --url")
	}
	accts, err := accounts.Load(cfg.Engine().AccountsFile)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if mc := cfg.Metrics(); mc.Enabled {
		metrics = observability.NewMetrics(mc.Namespace)
		stop := serveMetrics(mc.ListenAddr, metrics, logger)
		defer stop()
	}

	reporter, err := reporting.New(cfg.Engine().ReportFormat, cfg.Engine().ReportFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Error("Failed to finalize report.", zap.Error(err))
		}
	}()

	manager, err := browser.NewManager(ctx, cfg.Browser(), cfg.Resolver().OperationTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown incomplete.", zap.Error(err))
		}
	}()

	pool, err := worker.NewPool(cfg, logger, manager, worker.WithMetrics(metrics))
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(accts),
		progressbar.OptionSetWriter(status),
		progressbar.OptionSetDescription("   Filling forms..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
	tally := newTally()
	runErr := pool.Run(ctx, accts, func(res schemas.AccountResult) {
		if err := reporter.Write(res); err != nil {
			logger.Error("Failed to write result.", zap.String("email", res.Email), zap.Error(err))
		}
		tally.add(res)
		_ = bar.Add(1)
	})
	_ = bar.Finish()

	tally.print(status, pool.RunID())
	return runErr
}

// serveMetrics exposes the registry until the returned stop function is called.
func serveMetrics(addr string, metrics *observability.Metrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped.", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics.", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// tally counts finished accounts per status for the closing summary.
type tally struct {
	counts map[string]int
	total  int
}

func newTally() *tally { return &tally{counts: make(map[string]int)} }

func (t *tally) add(res schemas.AccountResult) {
	t.counts[res.Status()]++
	t.total++
}

func (t *tally) print(w io.Writer, runID string) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Fprintf(w, "\nRun %s: %d account(s)\n", runID, t.total)
	green.Fprintf(w, "  done           %d\n", t.counts[schemas.StatusDone])
	yellow.Fprintf(w, "  unrecoverable  %d\n", t.counts[schemas.StatusUnrecoverable])
	yellow.Fprintf(w, "  form errors    %d\n", t.counts[schemas.StatusFormErrors])
	red.Fprintf(w, "  errors         %d\n", t.counts[schemas.StatusError])
}
