package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document"
)

func TestAllocatorOptions(t *testing.T) {
	t.Run("custom args", func(t *testing.T) {
		base := allocatorOptions(config.BrowserConfig{})
		opts := allocatorOptions(config.BrowserConfig{Args: []string{"--custom-arg1", "--lang=fr"}})
		assert.Len(t, opts, len(base)+2)
	})

	t.Run("exec path", func(t *testing.T) {
		base := allocatorOptions(config.BrowserConfig{})
		withPath := allocatorOptions(config.BrowserConfig{ExecPath: "/opt/chrome/chrome"})
		assert.Len(t, withPath, len(base)+1)
	})
}

func TestLaunchOptions(t *testing.T) {
	opts := launchOptions(config.BrowserConfig{
		Headless:       true,
		Args:           []string{"--lang=fr"},
		StartupTimeout: 10 * time.Second,
	})
	require.NotNil(t, opts.Headless)
	assert.True(t, *opts.Headless)
	assert.Equal(t, 10000.0, *opts.Timeout)
	assert.Equal(t, "--lang=fr", opts.Args[len(opts.Args)-1], "user args come last")
	assert.Nil(t, opts.ExecutablePath)
	for _, arg := range opts.Args {
		assert.NotContains(t, arg, "AutomationControlled")
		assert.NotContains(t, arg, "user-agent")
	}
}

func TestViewport(t *testing.T) {
	w, h := viewport(config.BrowserConfig{})
	assert.Equal(t, 1366, w)
	assert.Equal(t, 900, h)

	w, h = viewport(config.BrowserConfig{Viewport: map[string]int{"width": 800, "height": 600}})
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestSettle(t *testing.T) {
	assert.NoError(t, settle(context.Background(), 0))
	assert.NoError(t, settle(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, settle(ctx, time.Hour), context.Canceled)
}

func TestNewManager_UnknownDriver(t *testing.T) {
	_, err := NewManager(context.Background(), config.BrowserConfig{Driver: "netscape"}, time.Second, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unknown browser driver")
}

func TestChromiumSession_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><label for="c">City</label><input id="c"></body></html>`)
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig().Browser()
	cfg.PostLoadWait = 0
	m, err := NewManager(context.Background(), cfg, 5*time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	defer m.Shutdown(context.Background())

	s, err := m.NewSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	require.NoError(t, s.Navigate(context.Background(), srv.URL))

	h, err := s.Document().LookupByLabel(context.Background(), "^city", 800*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, document.Handle(0), h)

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Close(expired), "close works on an expired context")
	assert.NoError(t, s.Close(context.Background()), "second close is a no-op")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	assert.NoError(t, m.Shutdown(shutdownCtx))
}
