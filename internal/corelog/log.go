// Package corelog provides the collection core's structured logger.
package corelog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

func init() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
}

// Debug logs a debug message. Collection Core uses this level for
// per-operation diffs (see diff.go) since they're too verbose for Info.
func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }

// Info logs an info message.
func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

// Warn logs a warning message.
func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

// Error logs an error message.
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

// With returns a child logger carrying fields on every subsequent call.
func With(fields ...zap.Field) *zap.Logger { return logger.With(fields...) }

// SetLogger replaces the package-global logger, e.g. with a test observer
// or a host application's own *zap.Logger.
func SetLogger(l *zap.Logger) { logger = l }

// GetLogger returns the current package-global logger.
func GetLogger() *zap.Logger { return logger }

// Configure rebuilds the global logger with the given level and, for
// development, human-readable console output.
func Configure(development bool, level string) error {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	logger = built
	return nil
}
