// Package cdpdoc implements document.Adapter over a live Chrome tab driven by chromedp.
package cdpdoc

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/internal/document"
)

// bridgeJS installs window.__formsmith, which every call goes through.
//
//go:embed bridge.js
var bridgeJS string

// BridgeScript exposes the page bridge to other drivers.
func BridgeScript() string { return bridgeJS }

const labelPollInterval = 100 * time.Millisecond

// Page adapts one chromedp tab.
type Page struct {
	tabCtx  context.Context
	timeout time.Duration
	logger  *zap.Logger
}

var _ document.Adapter = (*Page)(nil)

// New wraps tabCtx, a context created by chromedp.NewContext for the tab. Every call is
// bounded by opTimeout.
func New(tabCtx context.Context, opTimeout time.Duration, logger *zap.Logger) *Page {
	return &Page{tabCtx: tabCtx, timeout: opTimeout, logger: logger.Named("cdpdoc")}
}

// run executes actions against the tab, bounded by both ctx and timeout.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runCtx, runCancel := CombineContext(p.tabCtx, opCtx)
	defer runCancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("page operation timed out after %s: %w", timeout, opCtx.Err())
		}
		if ctx.Err() != nil || p.tabCtx.Err() != nil {
			return fmt.Errorf("page operation canceled: %w", err)
		}
		return fmt.Errorf("page evaluation failed: %w", err)
	}
	return nil
}

// call invokes a bridge method with JSON-encoded arguments.
func (p *Page) call(ctx context.Context, res interface{}, method string, args ...interface{}) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode argument for %s: %w", method, err)
		}
		encoded[i] = string(b)
	}
	script := fmt.Sprintf("%s\nwindow.__formsmith.%s(%s)", bridgeJS, method, strings.Join(encoded, ", "))
	return p.run(ctx, p.timeout, chromedp.Evaluate(script, res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithSilent(true)
	}))
}

// mutate runs a bridge method that reports false for a detached element.
func (p *Page) mutate(ctx context.Context, h document.Handle, method string, args ...interface{}) error {
	var ok bool
	if err := p.call(ctx, &ok, method, append([]interface{}{h}, args...)...); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s on %d: %w", method, h, document.ErrStaleHandle)
	}
	return nil
}

func (p *Page) Snapshot(ctx context.Context) (*document.Snapshot, error) {
	var nodes []document.Node
	if err := p.call(ctx, &nodes, "snapshot"); err != nil {
		return nil, err
	}
	return document.NewSnapshot(nodes), nil
}

func (p *Page) Query(ctx context.Context, selector string) ([]document.Handle, error) {
	var handles []document.Handle
	if err := p.call(ctx, &handles, "query", selector); err != nil {
		return nil, err
	}
	return handles, nil
}

// LookupByLabel polls the page until a matching control is visible or timeout elapses.
func (p *Page) LookupByLabel(ctx context.Context, pattern string, timeout time.Duration) (document.Handle, error) {
	if err := p.run(ctx, p.timeout, chromedp.Evaluate(bridgeJS, nil)); err != nil {
		return 0, err
	}
	pat, err := json.Marshal(pattern)
	if err != nil {
		return 0, err
	}
	expr := fmt.Sprintf("window.__formsmith && window.__formsmith.lookupByLabel(%s)", pat)

	var h document.Handle
	err = p.run(ctx, timeout+p.timeout, chromedp.Poll(expr, &h,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(labelPollInterval),
	))
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		p.logger.Debug("Label lookup gave up.", zap.String("pattern", pattern), zap.Error(err))
		return 0, fmt.Errorf("label '%s': %w", pattern, errors.Join(document.ErrNotFound, err))
	}
	if h == 0 {
		return 0, fmt.Errorf("label '%s': %w", pattern, document.ErrNotFound)
	}
	return h, nil
}

func (p *Page) AssignValue(ctx context.Context, h document.Handle, value string) error {
	return p.mutate(ctx, h, "assign", value)
}

func (p *Page) SelectIndex(ctx context.Context, h document.Handle, index int) error {
	return p.mutate(ctx, h, "selectIndex", index)
}

func (p *Page) Dispatch(ctx context.Context, h document.Handle, kind document.EventKind) error {
	return p.mutate(ctx, h, "dispatch", string(kind))
}

func (p *Page) Click(ctx context.Context, h document.Handle) error {
	return p.mutate(ctx, h, "click")
}

func (p *Page) Value(ctx context.Context, h document.Handle) (string, error) {
	var v *string
	if err := p.call(ctx, &v, "value", h); err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("value of %d: %w", h, document.ErrStaleHandle)
	}
	return *v, nil
}

func (p *Page) PageText(ctx context.Context) (string, error) {
	var text string
	if err := p.call(ctx, &text, "pageText"); err != nil {
		return "", err
	}
	return text, nil
}
