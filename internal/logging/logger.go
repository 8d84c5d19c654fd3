package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.RWMutex
	// log reports the caller as-is; helper skips the package-level wrappers.
	log    = zap.NewNop()
	helper = log
)

// Init builds the process logger. LOG_LEVEL in the environment overrides level.
func Init(level string, development bool) error {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}

	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err == nil {
			cfg.Level.SetLevel(lvl)
		}
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(logger)
	zap.ReplaceGlobals(logger)
	return nil
}

// Set swaps the process logger. Tests use it with zaptest/observer loggers.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
	helper = l.WithOptions(zap.AddCallerSkip(1))
}

// L returns the current logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func wrapped() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return helper
}

func Info(msg string, fields ...zap.Field) {
	wrapped().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	wrapped().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	wrapped().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	wrapped().Debug(msg, fields...)
}

func Sync() error {
	return L().Sync()
}
