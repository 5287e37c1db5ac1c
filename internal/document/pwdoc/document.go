// Package pwdoc implements document.Adapter over a Playwright page. It shares the page
// bridge with cdpdoc and uses Playwright's own label locator for accessible lookups.
package pwdoc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	json "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsmith/internal/document"
	"github.com/xkilldash9x/formsmith/internal/document/cdpdoc"
)

// callJS installs the bridge when missing and returns the JSON-encoded method result.
const callJS = `([src, method, args]) => {
  if (!window.__formsmith) (0, eval)(src);
  return JSON.stringify(window.__formsmith[method](...args));
}`

// handleJS resolves a located element to its bridge handle.
const handleJS = `(el, src) => {
  if (!window.__formsmith) (0, eval)(src);
  return window.__formsmith.handleOf(el);
}`

// Page adapts one Playwright page.
type Page struct {
	page    playwright.Page
	timeout time.Duration
	logger  *zap.Logger
}

var _ document.Adapter = (*Page)(nil)

// New wraps page. Every call is bounded by opTimeout.
func New(page playwright.Page, opTimeout time.Duration, logger *zap.Logger) *Page {
	return &Page{page: page, timeout: opTimeout, logger: logger.Named("pwdoc")}
}

// await runs fn on its own goroutine so a blocked driver call cannot outlive ctx or the
// operation timeout.
func (p *Page) await(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-opCtx.Done():
		return nil, fmt.Errorf("page operation abandoned: %w", opCtx.Err())
	}
}

func (p *Page) call(ctx context.Context, res interface{}, method string, args ...interface{}) error {
	if args == nil {
		args = []interface{}{}
	}
	raw, err := p.await(ctx, func() (interface{}, error) {
		return p.page.Evaluate(callJS, []interface{}{cdpdoc.BridgeScript(), method, args})
	})
	if err != nil {
		return fmt.Errorf("page evaluation of %s failed: %w", method, err)
	}
	encoded, ok := raw.(string)
	if !ok {
		return fmt.Errorf("unexpected %T result from %s", raw, method)
	}
	if res == nil {
		return nil
	}
	if err := json.UnmarshalFromString(encoded, res); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

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

// LookupByLabel waits for the first element Playwright associates with a matching label to
// become visible.
func (p *Page) LookupByLabel(ctx context.Context, pattern string, timeout time.Duration) (document.Handle, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid label pattern '%s': %w", pattern, err)
	}
	loc := p.page.GetByLabel(re).First()

	v, err := p.await(ctx, func() (interface{}, error) {
		if err := loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		}); err != nil {
			return nil, err
		}
		return loc.Evaluate(handleJS, cdpdoc.BridgeScript())
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		p.logger.Debug("Label lookup gave up.", zap.String("pattern", pattern), zap.Error(err))
		return 0, fmt.Errorf("label '%s': %w", pattern, errors.Join(document.ErrNotFound, err))
	}
	h, ok := toHandle(v)
	if !ok || h == 0 {
		return 0, fmt.Errorf("label '%s': %w", pattern, document.ErrNotFound)
	}
	return h, nil
}

// toHandle normalizes the numeric types the driver may return.
func toHandle(v interface{}) (document.Handle, bool) {
	switch n := v.(type) {
	case int:
		return document.Handle(n), true
	case int64:
		return document.Handle(n), true
	case float64:
		return document.Handle(n), true
	}
	return 0, false
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
