package anomaly

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formsmith/api/schemas"
	"github.com/xkilldash9x/formsmith/internal/config"
	"github.com/xkilldash9x/formsmith/internal/document/htmldoc"
	"github.com/xkilldash9x/formsmith/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted answers from a fixed sequence, repeating the last value.
type scripted struct {
	mu      sync.Mutex
	answers []bool
	calls   int
	err     error
}

func (s *scripted) Present(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	i := s.calls - 1
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return s.answers[i], nil
}

func defaultAnomalyConfig() config.AnomalyConfig {
	return config.NewDefaultConfig().Anomaly()
}

func TestDetector(t *testing.T) {
	tests := []struct {
		name string
		page string
		want bool
	}{
		{"clean form", `<body><form><input name="city"></form></body>`, false},
		{"captcha class", `<body><div class="g-captcha-box"></div></body>`, true},
		{"hidden captcha", `<body><div class="captcha" style="display:none"></div></body>`, false},
		{"recaptcha frame", `<body><iframe src="https://www.google.com/recaptcha/api2"></iframe></body>`, true},
		{"text indicator", `<body><p>We noticed Unusual Activity from your network.</p></body>`, true},
		{"hidden text", `<body><p hidden>unusual activity</p></body>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := htmldoc.ParseString(tt.page)
			require.NoError(t, err)
			got, err := NewDetector(doc, defaultAnomalyConfig()).Present(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetector_EmptyConfig(t *testing.T) {
	doc, err := htmldoc.ParseString(`<body><div class="captcha">verify you are human</div></body>`)
	require.NoError(t, err)
	got, err := NewDetector(doc, config.AnomalyConfig{TextIndicators: []string{"  "}}).Present(context.Background())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestWaiter_ClearedImmediately(t *testing.T) {
	p := &scripted{answers: []bool{false}}
	w := NewWaiter(p, time.Hour, time.Hour, zaptest.NewLogger(t), nil)

	assert.Equal(t, schemas.AnomalyCleared, w.Wait(context.Background()))
	assert.Equal(t, 1, p.calls)
}

func TestWaiter_ClearedAfterPolling(t *testing.T) {
	p := &scripted{answers: []bool{true, true, false}}
	metrics := observability.NewMetrics("test")
	w := NewWaiter(p, time.Millisecond, time.Minute, zaptest.NewLogger(t), metrics)

	assert.Equal(t, schemas.AnomalyCleared, w.Wait(context.Background()))
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnomalyWaits.WithLabelValues(string(schemas.AnomalyCleared))))
}

func TestWaiter_DeadlineExceeded(t *testing.T) {
	p := &scripted{answers: []bool{true}}
	w := NewWaiter(p, 5*time.Millisecond, 30*time.Millisecond, zaptest.NewLogger(t), nil)

	start := time.Now()
	assert.Equal(t, schemas.AnomalyDeadlineExceeded, w.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaiter_ContextEnds(t *testing.T) {
	p := &scripted{answers: []bool{true}}
	w := NewWaiter(p, time.Hour, time.Hour, zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Equal(t, schemas.AnomalyStillPresent, w.Wait(ctx))
}

func TestWaiter_PredicateErrorProceeds(t *testing.T) {
	p := &scripted{err: errors.New("target closed")}
	w := NewWaiter(p, time.Hour, time.Hour, zaptest.NewLogger(t), nil)

	assert.Equal(t, schemas.AnomalyCleared, w.Wait(context.Background()))
}
