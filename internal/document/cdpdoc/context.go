package cdpdoc

import (
	"context"
	"time"
)

// CombineContext derives a context from tabCtx, which carries the chromedp target, that is
// also canceled when opCtx is done. Values come from tabCtx only.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// detached keeps the values of its parent but never expires.
type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context with the values of ctx (the chromedp target among them) that is
// not canceled with it. Cleanup of a tab whose operation context already expired uses it.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}
