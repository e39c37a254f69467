package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spooky-finn/go-marketdata-checker/config"
)

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger writes JSON to stdout and, when cfg.LogFile is set, to a
// rotated file as well. Debug mode forces the debug level.
func NewLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(writer(cfg), options(cfg)))
}

func options(cfg *config.Config) *slog.HandlerOptions {
	level := ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}

func writer(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stdout
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, fileLogger)
}
