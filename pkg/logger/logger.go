// Package logger wraps log/slog with JSON/text handlers, log rotation and
// context-aware helpers shared by every component in the service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var globalLogger *slog.Logger

// Config controls the global logger.
type Config struct {
	// Level: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format: json or text.
	Format string `mapstructure:"format"`
	// Output: stdout, file, both.
	Output string `mapstructure:"output"`
	// FilePath is used when Output is file or both.
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// Init builds the global slog instance and installs it as the default.
func Init(cfg Config) error {
	var output io.Writer

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	switch cfg.Output {
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return err
		}
		output = fileWriter
	case "both":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return err
		}
		output = io.MultiWriter(os.Stdout, fileWriter)
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.WithCaller,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	return nil
}

// Get returns the global logger, falling back to slog's default before Init.
func Get() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

type requestIDKey struct{}

// WithRequestID stores a request identifier for WithContext to pick up.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// WithContext returns a logger annotated with the request identifier found in
// the context, when present.
func WithContext(ctx context.Context) *slog.Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok && reqID != "" {
		return l.With(slog.String("request_id", reqID))
	}
	return l
}

func Debug(ctx context.Context, msg string, args ...any) { WithContext(ctx).Debug(msg, args...) }
func Info(ctx context.Context, msg string, args ...any)  { WithContext(ctx).Info(msg, args...) }
func Warn(ctx context.Context, msg string, args ...any)  { WithContext(ctx).Warn(msg, args...) }
func Error(ctx context.Context, msg string, args ...any) { WithContext(ctx).Error(msg, args...) }

// Fatal logs at error level and exits.
func Fatal(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
	os.Exit(1)
}

// LogDuration returns a func suitable for defer that logs the elapsed time.
func LogDuration(ctx context.Context, msg string, args ...any) func() {
	start := time.Now()
	return func() {
		args = append(args, slog.Duration("duration", time.Since(start)))
		Info(ctx, msg, args...)
	}
}
