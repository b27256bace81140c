// Package logging constructs the structured logger every component takes
// as a dependency. Adapted from roboll-helmfile's pkg/helmexec.NewLogger:
// same zapcore console-encoder construction, generalized to a package of
// its own rather than a helper tucked inside an exec wrapper.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger writing to w at the given level
// ("debug", "info", "warn", "error"; unrecognized levels default to
// info).
func New(w io.Writer, logLevel string) *zap.SugaredLogger {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		NameKey:        "logger",
		CallerKey:      "",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var level zapcore.Level
	if err := level.Set(logLevel); err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

// Nop returns a logger that discards everything, for tests and defaults.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
