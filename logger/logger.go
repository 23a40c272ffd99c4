// Package logger provides structured logging for the walletkit SDK.
//
// It wraps Uber's zap logger behind a single global instance so every
// component logs through the same sink. Until InitLogger is called the
// global logger is a no-op, which keeps library consumers that do their
// own logging from getting surprise output.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// InitLogger configures the global logger at the given level
// (debug, info, warn, error). Invalid levels fall back to info.
func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
