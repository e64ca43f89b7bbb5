// Package logging adapts go.uber.org/zap to the ledger service logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config controls level and encoding.
type Config struct {
	Level  string
	Format Format
}

// Logger satisfies core.Logger on top of a sugared zap logger. Arguments are
// alternating key/value pairs, as zap's *w methods expect.
type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// New builds a production zap logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if cfg.Level == "" {
		level, err = zapcore.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch cfg.Format {
	case "", FormatJSON:
		zc.Encoding = string(FormatJSON)
	case FormatConsole:
		zc.Encoding = string(FormatConsole)
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	base, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return Wrap(base), nil
}

// Wrap adapts an existing zap logger. A nil logger yields a no-op logger.
func Wrap(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base, sugar: base.Sugar()}
}

// Named returns a child logger scoped to component.
func (l *Logger) Named(component string) *Logger {
	return Wrap(l.base.Named(component))
}

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Zap exposes the underlying logger for libraries that take one directly.
func (l *Logger) Zap() *zap.Logger { return l.base }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.base.Sync() }
