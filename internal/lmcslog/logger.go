// Package lmcslog provides the structured logger shared by every internal
// lmcs package. It exposes the same four-level API the teacher repo's
// hand-rolled logger exposes (Debug/Info/Warn/Error, SetLevel), backed by
// go.uber.org/zap instead of a raw io.Writer formatter.
package lmcslog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the four levels spec.md's ambient logging needs.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zapLevel() zapcore.Level {
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

// ParseLevel parses a config string ("debug", "info", "warn", "error")
// into a Level, defaulting to LevelInfo on an unrecognized value.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger wraps a zap.Logger with the sprintf-style call sites the rest of
// this module's packages use, matching the teacher's logger.Logger API.
type Logger struct {
	base  *zap.Logger
	level *zap.AtomicLevel
}

// New builds a Logger at the given level, writing to stderr in a console
// encoding (matching docdb's timestamped, leveled, prefixed line format).
func New(level Level, prefix string) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(level.zapLevel())

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = "ts"
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		atomicLevel,
	)

	base := zap.New(core).Named(prefix)
	return &Logger{base: base, level: &atomicLevel}
}

// Default returns a Logger at LevelInfo with the "lmcs" prefix.
func Default() *Logger {
	return New(LevelInfo, "lmcs")
}

// Nop returns a Logger that discards everything; useful in tests.
func Nop() *Logger {
	return &Logger{base: zap.NewNop()}
}

// SetLevel adjusts the minimum level dynamically.
func (l *Logger) SetLevel(level Level) {
	if l.level != nil {
		l.level.SetLevel(level.zapLevel())
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.base.Sugar().Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.base.Sugar().Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.base.Sugar().Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.base.Sugar().Errorf(format, args...) }

// With returns a child Logger tagged with the given key/value pairs.
func (l *Logger) With(keyValues ...interface{}) *Logger {
	return &Logger{base: l.base.Sugar().With(keyValues...).Desugar(), level: l.level}
}

// Sync flushes any buffered log entries; call on shutdown.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
