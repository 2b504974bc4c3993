// Package logging builds zap loggers for the launcher's opt-in debug
// logging.
//
// The library is silent unless the caller attaches a logger or enables the
// environment toggles below. Both toggles exist for debugging integration
// tests that launch real daemons.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// EnvDebug enables console debug logging when set to a non-empty value.
	EnvDebug = "DBUS_LAUNCH_DEBUG"
	// EnvLogFile enables debug logging to the given file path.
	EnvLogFile = "DBUS_LAUNCH_LOG_FILE"

	// MaxLogSizeMB is the size at which a log file is rotated.
	MaxLogSizeMB = 20
	// MaxLogAgeDays is how long rotated log files are kept.
	MaxLogAgeDays = 7
)

// Config holds the logger construction options.
type Config struct {
	// Level is the minimum severity to emit.
	Level zapcore.Level
	// FilePath, when non-empty, adds a rotating JSON log file.
	FilePath string
	// Console, when true, adds a console core on stderr.
	Console bool
}

// New builds a zap logger from cfg. With neither a file nor console output
// configured it returns a no-op logger.
func New(cfg Config) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var cores []zapcore.Core

	if cfg.FilePath != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename: cfg.FilePath,
			MaxSize:  MaxLogSizeMB,
			MaxAge:   MaxLogAgeDays,
			Compress: true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			fileWriter,
			cfg.Level,
		))
	}

	if cfg.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stderr),
			cfg.Level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}
	return zap.New(zapcore.NewTee(cores...))
}

// FromEnv builds a logger from the DBUS_LAUNCH_DEBUG and
// DBUS_LAUNCH_LOG_FILE environment variables. With neither set it returns a
// no-op logger.
func FromEnv() *zap.Logger {
	return New(Config{
		Level:    zapcore.DebugLevel,
		FilePath: os.Getenv(EnvLogFile),
		Console:  os.Getenv(EnvDebug) != "",
	})
}
