// Package logger provides structured logging for the diagnostics service
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
	"github.com/armorclaw/diagnostics/pkg/privacy"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps slog.Logger with diagnostics-specific functionality
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     string
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or file path
	Component string // Component name for logs
	Version   string // Application version attached to every record

	// Scrubber, when set, redacts messages and string attributes
	// before they reach the handler.
	Scrubber *privacy.Scrubber
}

// New creates a new logger instance
func New(cfg Config) (*Logger, error) {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Determine output writer
	var writer io.Writer
	output := cfg.Output
	if output == "" {
		output = "stdout" // Default to stdout if empty
	}

	switch output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// File output
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
	}

	// Create handler options
	opts := &slog.HandlerOptions{
		Level: level,
	}

	// Create handler based on format
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	if cfg.Scrubber != nil {
		handler = NewRedactingHandler(handler, cfg.Scrubber)
	}

	// Create logger with default attributes
	logger := slog.New(handler)
	attrs := []any{
		"service", "diagd",
		"component", cfg.Component,
	}
	if cfg.Version != "" {
		attrs = append(attrs, "version", cfg.Version)
	}
	logger = logger.With(attrs...)

	return &Logger{
		Logger:    logger,
		component: cfg.Component,
	}, nil
}

// Discard returns a logger that drops every record. Intended for tests
// and for components constructed before configuration is loaded.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}

// WithComponent returns a new logger with the component name set
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", component),
		component: component,
	}
}

// WithRequestID returns a new logger with a request ID for tracing
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("request_id", requestID),
		component: l.component,
	}
}

// WithSessionID returns a new logger with a session ID attached
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("session_id", sessionID),
		component: l.component,
	}
}

// WithDevice returns a new logger with a device identifier attached
func (l *Logger) WithDevice(deviceID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("device_id", deviceID),
		component: l.component,
	}
}

// ErrorEvent logs an error with context. Classified errors carry their
// stable code, domain, severity, and retryability as attributes.
func (l *Logger) ErrorEvent(ctx context.Context, message string, err error, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("error", err.Error()),
	}

	var de *errsys.Error
	if errors.As(err, &de) {
		baseAttrs = append(baseAttrs,
			slog.String("error_type", de.Kind.String()),
			slog.Int("code", de.Code()),
			slog.String("domain", string(de.Domain())),
			slog.String("severity", de.Severity().Label()),
			slog.Bool("retryable", de.Retryable()),
		)
	} else {
		baseAttrs = append(baseAttrs, slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	if _, file, line, ok := runtimeCaller(1); ok {
		baseAttrs = append(baseAttrs,
			slog.String("source_file", file),
			slog.Int("source_line", line),
		)
	}

	allAttrs := append(baseAttrs, attrs...)

	l.LogAttrs(ctx, slog.LevelError, message, allAttrs...)
}

// runtimeCaller captures caller information for stack traces
func runtimeCaller(skip int) (pc uintptr, file string, line int, ok bool) {
	pc, file, line, ok = runtime.Caller(skip + 1)
	// Trim file path to basename
	if ok {
		file = filepath.Base(file)
	}
	return
}

// LogAttr creates a slog.Attr from a key and value (convenience helper)
func LogAttr(key string, value interface{}) slog.Attr {
	return slog.Any(key, value)
}
