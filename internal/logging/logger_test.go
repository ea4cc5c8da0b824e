package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json format", config: &Config{Level: LevelInfo, Format: "json", Output: &bytes.Buffer{}}},
		{name: "logfmt format", config: &Config{Level: LevelDebug, Format: "logfmt", Output: &bytes.Buffer{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			require.NotNil(t, logger)
		})
	}
}

func TestLoggerWithSessionAndChannel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "logfmt", Output: &buf})

	sessionLogger := logger.WithSession(42)
	sessionLogger.Info("test message")
	require.Contains(t, buf.String(), "session_pid=42")

	buf.Reset()
	channelLogger := sessionLogger.WithChannel("trace")
	channelLogger.Info("channel message")
	output := buf.String()
	require.Contains(t, output, "session_pid=42")
	require.Contains(t, output, "channel=trace")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "logfmt", Output: &buf})

	errLogger := logger.WithError(errors.New("boom"))
	errLogger.Error("operation failed")
	require.Contains(t, buf.String(), "boom")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Format: "logfmt", Output: &buf})

	logger.Debug("should be dropped")
	logger.Info("should also be dropped")
	require.Empty(t, buf.String())

	logger.Warn("should appear")
	require.True(t, strings.Contains(buf.String(), "should appear"))
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Format: "logfmt", Output: &buf}))

	Debug("debug message", "key", "value")
	require.Contains(t, buf.String(), "debug message")
	require.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Info("info message")
	require.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	require.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	require.Contains(t, buf.String(), "error message")
}
