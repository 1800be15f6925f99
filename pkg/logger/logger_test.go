package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(level Level) (*Logger, *bytes.Buffer) {
	l, _ := New(Config{Level: level, Prefix: "test"})
	var buf bytes.Buffer
	l.AddWriter(&buf)
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := captureLogger(LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("visible warning")
	l.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "visible error")
}

func TestFormatting(t *testing.T) {
	l, buf := captureLogger(LevelInfo)
	l.Info("pull request %d reconciled", 42)

	line := buf.String()
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "[test]")
	assert.Contains(t, line, "pull request 42 reconciled")
}

func TestWithPrefix(t *testing.T) {
	l, buf := captureLogger(LevelInfo)
	sub := l.WithPrefix("openjdk/jdk")
	sub.Info("hello")

	assert.Contains(t, buf.String(), "[test:openjdk/jdk]")
}

func TestSetLevel(t *testing.T) {
	l, buf := captureLogger(LevelError)
	l.Info("hidden")
	l.SetLevel(LevelDebug)
	l.Debug("now visible")

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "now visible")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}
