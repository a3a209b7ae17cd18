package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new zap logger based on the LOG_LEVEL environment variable.
// Valid levels: debug, info, warn, error.
// Default: info.
//
// When LOG_FILE is set, records are also written to that file and rotated by
// size (LOG_FILE_MAX_SIZE_MB), count (LOG_FILE_MAX_BACKUPS) and age
// (LOG_FILE_MAX_AGE_DAYS).
func NewLogger() (*zap.Logger, error) {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}

	var level zapcore.Level
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Encoding = "json"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var opts []zap.Option
	if path := os.Getenv("LOG_FILE"); path != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(config.EncoderConfig),
			zapcore.AddSync(newRotatingFile(path)),
			config.Level,
		)
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	logger, err := config.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}

func newRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    getIntOrDefault("LOG_FILE_MAX_SIZE_MB", 100),
		MaxBackups: getIntOrDefault("LOG_FILE_MAX_BACKUPS", 5),
		MaxAge:     getIntOrDefault("LOG_FILE_MAX_AGE_DAYS", 7),
		Compress:   true,
	}
}
