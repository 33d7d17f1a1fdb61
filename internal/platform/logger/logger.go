// Package logger provides structured logging for the game server.
// Every state transition the referee makes should be traceable through this.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger behind the narrow surface the rest of the
// server uses.
type Logger struct {
	zl *zap.SugaredLogger
}

// New builds a logger from the configured level and format ("json" or
// "console").
func New(levelStr, format string) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{zl: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop().Sugar()}
}

// Info logs informational messages.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.zl.Infow(msg, keysAndValues...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.zl.Warnw(msg, keysAndValues...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.zl.Errorw(msg, keysAndValues...)
}

// Event logs a discrete game event for operator oversight.
func (l *Logger) Event(eventType string, keysAndValues ...interface{}) {
	l.zl.Infow("EVENT:"+eventType, keysAndValues...)
}

// Sync flushes buffered log entries. Call on shutdown.
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}
