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

	"github.com/xkilldash9x/webpilot/internal/config"
)

// syncBuffer adapts a bytes.Buffer into a zapcore.WriteSyncer so tests can
// hand Initialize a console writer they control.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func consoleConfig() config.LoggerConfig {
	return config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "webpilot-test",
		Colors: config.ColorConfig{
			Debug: "cyan",
			Info:  "green",
			Warn:  "yellow",
			Error: "red",
			Fatal: "magenta",
		},
	}
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes levels", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		Initialize(consoleConfig(), out)

		GetLogger().Info("hello from the console")
		GetLogger().Warn("something odd")

		logged := out.String()
		assert.Contains(t, logged, "hello from the console")
		assert.Contains(t, logged, colorGreen+"INFO"+colorReset)
		assert.Contains(t, logged, colorYellow+"WARN"+colorReset)
		assert.Contains(t, logged, "webpilot-test.")
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		cfg := consoleConfig()
		cfg.Format = "json"
		Initialize(cfg, out)

		GetLogger().Info("structured entry", zap.String("session_id", "s-1"))

		line := strings.TrimSpace(out.String())
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "structured entry", entry["msg"])
		assert.Equal(t, "s-1", entry["session_id"])
		assert.Equal(t, "INFO", entry["level"])
	})

	t.Run("level below threshold is dropped", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		cfg := consoleConfig()
		cfg.Level = "warn"
		Initialize(cfg, out)

		GetLogger().Info("too quiet to matter")
		GetLogger().Warn("loud enough")

		logged := out.String()
		assert.NotContains(t, logged, "too quiet to matter")
		assert.Contains(t, logged, "loud enough")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}
		cfg := consoleConfig()
		cfg.Level = "extremely-verbose"
		Initialize(cfg, out)

		GetLogger().Debug("should be dropped")
		GetLogger().Info("should appear")

		logged := out.String()
		assert.NotContains(t, logged, "should be dropped")
		assert.Contains(t, logged, "should appear")
	})

	t.Run("second initialize is a no-op", func(t *testing.T) {
		ResetForTest()
		first := &syncBuffer{}
		second := &syncBuffer{}
		Initialize(consoleConfig(), first)
		Initialize(consoleConfig(), second)

		GetLogger().Info("goes to the first writer")

		assert.Contains(t, first.String(), "goes to the first writer")
		assert.Empty(t, second.String())
	})
}

func TestInitialize_FileSink(t *testing.T) {
	ResetForTest()
	logFile := filepath.Join(t.TempDir(), "webpilot.log")
	out := &syncBuffer{}
	cfg := consoleConfig()
	cfg.LogFile = logFile
	Initialize(cfg, out)

	GetLogger().Info("written to both sinks", zap.Int("step", 3))
	require.NoError(t, GetLogger().Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	// The file sink is always JSON regardless of the console format.
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "written to both sinks", entry["msg"])
	assert.Equal(t, float64(3), entry["step"])
	assert.Contains(t, out.String(), "written to both sinks")
}

func TestGetLogger_FallbackBeforeInitialize(t *testing.T) {
	ResetForTest()

	logger := GetLogger()
	require.NotNil(t, logger)
	// The fallback must be safe to use without panicking.
	logger.Debug("fallback logger in use")
}

func TestResetForTest(t *testing.T) {
	ResetForTest()
	first := &syncBuffer{}
	Initialize(consoleConfig(), first)
	require.NotNil(t, globalLogger.Load())

	ResetForTest()
	assert.Nil(t, globalLogger.Load())

	// After a reset, initialization must work again.
	second := &syncBuffer{}
	Initialize(consoleConfig(), second)
	GetLogger().Info("after reset")
	assert.Contains(t, second.String(), "after reset")
	assert.Empty(t, first.String())
}

func TestSync_NilLoggerIsSafe(t *testing.T) {
	ResetForTest()
	assert.NotPanics(t, func() { Sync() })
}
