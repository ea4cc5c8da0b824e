// Package logging provides structured logging for datarouter, built on
// go.uber.org/zap (grounded on sakateka-yanet2's use of
// *zap.SugaredLogger throughout its control plane) behind the teacher's
// own logging.Logger method set and package shape: Debug/Info/Warn/Error
// taking (msg string, kv ...any), Debugf/Infof/... for printf style, and
// package-level Default()/SetDefault()/NewLogger(*Config).
package logging

import (
	"io"
	"os"
	"sync"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds logging configuration. Writes to Output happen
// synchronously (zapcore.AddSync around a plain io.Writer), which is
// what makes this usable against a bytes.Buffer in tests.
type Config struct {
	Level  LogLevel
	Output io.Writer
	Format string // "logfmt" (default, key=value pairs) or "json"
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Output: os.Stderr, Format: "logfmt"}
}

// Logger wraps a *zap.SugaredLogger with the daemon's logging shape.
type Logger struct {
	sugar *zap.SugaredLogger
}

// buildEncoder picks logfmt (grounded on grafana-tempo's use of
// jsternberg/zap-logfmt, and matching the teacher's own hand-rolled
// "key=value key2=value2" formatArgs output) or JSON.
func buildEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zaplogfmt.NewEncoder(encCfg)
}

// NewLogger creates a new Logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "logfmt"
	}

	ws := zapcore.AddSync(output)
	core := zapcore.NewCore(buildEncoder(format), ws, config.Level.zapLevel())
	zl := zap.New(core)
	return &Logger{sugar: zl.Sugar()}
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Printf is retained for compatibility with code written against the
// interfaces.Logger shape (Printf + Debugf only).
func (l *Logger) Printf(format string, args ...any) { l.sugar.Infof(format, args...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// WithSession returns a Logger tagged with a session (producer PID)
// field, mirroring the teacher's WithDevice/WithQueue child-logger
// pattern.
func (l *Logger) WithSession(pid int32) *Logger {
	return &Logger{sugar: l.sugar.With("session_pid", pid)}
}

// WithChannel returns a Logger tagged with a channel name field.
func (l *Logger) WithChannel(name string) *Logger {
	return &Logger{sugar: l.sugar.With("channel", name)}
}

// WithError returns a Logger tagged with an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{sugar: l.sugar.With("error", err)}
}

// Global convenience functions operating on the default logger.
func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
