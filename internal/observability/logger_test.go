// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/formsmith/internal/config"
)

// syncBuffer is a goroutine-safe WriteSyncer for capturing console output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "formsmith",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)

		GetLogger().Info("resolved field", zap.String("intent", "city"))
		Sync()

		output := out.String()
		assert.Contains(t, output, "\x1b[32mINFO"+colorReset)
		assert.Contains(t, output, "formsmith.")
		assert.Contains(t, output, "resolved field")
		assert.Contains(t, output, `"intent": "city"`)
	})

	t.Run("json output is parseable", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "jsontest"}, out)

		GetLogger().Warn("validation failed", zap.Strings("failed", []string{"city"}))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "jsontest", entry["logger"])
		assert.Equal(t, "validation failed", entry["msg"])
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, out)

		GetLogger().Debug("hidden")
		GetLogger().Info("hidden too")
		Sync()
		assert.Empty(t, out.String())
	})

	t.Run("file core receives entries", func(t *testing.T) {
		ResetForTest()
		logPath := filepath.Join(t.TempDir(), "formsmith.log")
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", LogFile: logPath, MaxSize: 1}, &syncBuffer{})

		GetLogger().Error("goes to file")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "goes to file")
	})

	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "second"}, out)

		assert.Same(t, first, GetLogger())
		GetLogger().Info("which one")
		Sync()
		assert.Contains(t, out.String(), "first")
		assert.NotContains(t, out.String(), "second")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load(), "fallback must not be stored globally")

	named := Named("resolver")
	require.NotNil(t, named)
}
