package cdpdoc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formsmith/internal/document"
)

// controlledPage overrides the instance value property of #city so plain assignment is
// swallowed, the way framework-managed inputs behave.
const controlledPage = `<!doctype html><html><body>
<div class="form-group">
  <label for="city">City</label>
  <input id="city" name="city">
</div>
<select id="state" name="state"><option>--</option><option>California</option><option>Texas</option></select>
<input type="checkbox" id="terms" aria-label="I accept">
<p>Please complete the mandatory fields</p>
<script>
  window.events = [];
  const city = document.getElementById('city');
  Object.defineProperty(city, 'value', {
    configurable: true,
    get() { return Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').get.call(this); },
    set(v) { /* swallowed */ },
  });
  for (const kind of ['input', 'change']) {
    city.addEventListener(kind, () => window.events.push(kind));
  }
</script>
</body></html>`

// newTestPage starts a headless tab on the given HTML, skipping when no browser is available.
func newTestPage(t *testing.T, body string) (*Page, context.Context) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox, chromedp.Flag("disable-dev-shm-usage", true))...)
	t.Cleanup(allocCancel)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	t.Cleanup(tabCancel)

	startCtx, cancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate(srv.URL)); err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	return New(tabCtx, 5*time.Second, zaptest.NewLogger(t)), context.Background()
}

func TestPage_ControlledInputWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	page, ctx := newTestPage(t, controlledPage)

	h, err := page.LookupByLabel(ctx, "^city", 800*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, page.AssignValue(ctx, h, "Paris"))
	require.NoError(t, page.Dispatch(ctx, h, document.EventInput))
	require.NoError(t, page.Dispatch(ctx, h, document.EventChange))

	v, err := page.Value(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "Paris", v, "the prototype setter bypasses the instance override")

	var events []string
	require.NoError(t, page.run(ctx, time.Second, chromedp.Evaluate(`window.events`, &events)))
	assert.Equal(t, []string{"input", "change"}, events)
}

func TestPage_SnapshotAndSelect(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	page, ctx := newTestPage(t, controlledPage)

	snap, err := page.Snapshot(ctx)
	require.NoError(t, err)
	selects := snap.Elements("select")
	require.Len(t, selects, 1)
	state := selects[0]
	assert.True(t, state.Visible)
	require.Len(t, state.Options, 3)
	assert.Equal(t, "California", state.Options[1].Text)

	require.NoError(t, page.SelectIndex(ctx, state.Handle, 1))
	v, err := page.Value(ctx, state.Handle)
	require.NoError(t, err)
	assert.Equal(t, "California", v)

	again, err := page.Snapshot(ctx)
	require.NoError(t, err)
	n, ok := again.Node(state.Handle)
	require.True(t, ok, "handles are stable across snapshots")
	assert.Equal(t, 1, n.SelectedIndex)

	text, err := page.PageText(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "mandatory fields")

	handles, err := page.Query(ctx, ".form-group")
	require.NoError(t, err)
	assert.Len(t, handles, 1)
}

func TestPage_LookupTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	page, ctx := newTestPage(t, controlledPage)

	start := time.Now()
	_, err := page.LookupByLabel(ctx, "^nonexistent", 300*time.Millisecond)
	assert.ErrorIs(t, err, document.ErrNotFound)
	assert.Less(t, time.Since(start), 5*time.Second)

	err = page.Click(ctx, document.Handle(987654))
	assert.ErrorIs(t, err, document.ErrStaleHandle)
}

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("inherits values from the tab context", func(t *testing.T) {
		tab := context.WithValue(context.Background(), key, "tab-1")
		combined, cancel := CombineContext(tab, context.Background())
		defer cancel()
		assert.Equal(t, "tab-1", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("canceled by the operation context", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()
		cancelOp()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("canceled by the tab context", func(t *testing.T) {
		tab, cancelTab := context.WithCancel(context.Background())
		combined, cancel := CombineContext(tab, context.Background())
		defer cancel()
		cancelTab()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("explicit cancel", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), key, "tab-1"), time.Millisecond)
	defer cancel()
	<-parent.Done()

	d := Detach(parent)
	assert.Equal(t, "tab-1", d.Value(key))
	assert.NoError(t, d.Err())
	assert.Nil(t, d.Done())
	_, ok := d.Deadline()
	assert.False(t, ok)
}
