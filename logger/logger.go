// Package logger wraps log/slog with the handler, level and rotation settings
// the API is configured with.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the handler, level and destination of the global logger.
type Options struct {
	Level      string // debug, info, warn, error
	Format     string // json or text
	Output     string // stdout or file
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger wraps slog.Logger so call sites can keep a package-level handle.
type Logger struct {
	*slog.Logger
}

var logger atomic.Pointer[Logger]

// Init builds the global logger from opts.
func Init(opts Options) error {
	var writer io.Writer = os.Stdout

	if opts.Output == "file" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return err
		}
		writer = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    withDefault(opts.MaxSizeMB, 100),
			MaxBackups: withDefault(opts.MaxBackups, 5),
			MaxAge:     withDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.Level == "debug",
	}

	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	}

	logger.Store(&Logger{Logger: slog.New(handler)})
	Info("logger initialized", "level", opts.Level, "format", opts.Format, "output", opts.Output)
	return nil
}

// SetOutput points the global logger at w (tests use it to capture lines).
func SetOutput(w io.Writer, level string) {
	logger.Store(&Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))})
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the global logger, or slog's default before Init runs.
func GetLogger() *Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return &Logger{Logger: slog.Default()}
}

func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	GetLogger().InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	GetLogger().WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	GetLogger().ErrorContext(ctx, msg, args...)
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *Logger {
	return &Logger{Logger: GetLogger().With(args...)}
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
