// Package logging backs the log/slog loggers of the process with zap.
package logging

import (
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger configured for structured production logging.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

// New returns a slog logger writing through a zap logger of the given level, and the function
// flushing it.
func New(level string) (*slog.Logger, func(), error) {
	zl, err := NewLogger(level)
	if err != nil {
		return nil, nil, err
	}
	return Wrap(zl.Core()), func() { _ = zl.Sync() }, nil
}

// Wrap returns a slog logger writing to the zap core.
func Wrap(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}
