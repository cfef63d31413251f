package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance. Defaults to a no-op logger so packages used
// before Initialize (and in tests) do not panic.
var std atomic.Pointer[zap.SugaredLogger]

func init() {
	std.Store(zap.NewNop().Sugar())
}

// Initialize sets up the global logger based on level ("debug", "info", "warn", "error")
// and format ("json" or "console").
func Initialize(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	std.Store(l.Sugar())
	return nil
}

// ParseLevel maps the textual levels accepted in configuration to zap levels.
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug", "DEBUG":
		return zapcore.DebugLevel, nil
	case "info", "INFO", "":
		return zapcore.InfoLevel, nil
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel, nil
	case "error", "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Set replaces the global logger. Intended for tests that capture output.
func Set(l *zap.Logger) {
	std.Store(l.WithOptions(zap.AddCallerSkip(1)).Sugar())
}

// Sync flushes buffered entries; call on shutdown.
func Sync() {
	_ = std.Load().Sync()
}

// Package-level helpers
func Debug(format string, v ...any) { std.Load().Debugf(format, v...) }
func Info(format string, v ...any)  { std.Load().Infof(format, v...) }
func Warn(format string, v ...any)  { std.Load().Warnf(format, v...) }
func Error(format string, v ...any) { std.Load().Errorf(format, v...) }

// Debugw logs at debug level with structured key-value pairs.
func Debugw(msg string, keysAndValues ...any) { std.Load().Debugw(msg, keysAndValues...) }

// Infow logs at info level with structured key-value pairs.
func Infow(msg string, keysAndValues ...any) { std.Load().Infow(msg, keysAndValues...) }

// Warnw logs at warn level with structured key-value pairs.
func Warnw(msg string, keysAndValues ...any) { std.Load().Warnw(msg, keysAndValues...) }
