// Package logger provides standardized logging for the c3ffi orchestrator.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Global logger instance
var defaultLogger *slog.Logger

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration.
// Build scripts treat stdout as a directive channel, so logs go to stderr.
func DefaultConfig() Config {
	return Config{
		Level:     LevelWarn,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// ParseLevel maps a textual level ("debug", "info", "warn", "error") to a LogLevel.
// Unknown values fall back to def.
func ParseLevel(raw string, def LogLevel) LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return def
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var handler slog.Handler

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = file
	}

	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	return nil
}

// Discard silences all logging. Used by tests.
func Discard() {
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the configured logger, or slog's default when Init was never called.
func Logger() *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a new logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Orchestrator-specific logging helpers

// LogToolchain logs the toolchain selected for a session.
func LogToolchain(path, version string) {
	Info("toolchain located", "path", path, "version", version)
}

// LogSources logs the resolved compile units.
func LogSources(output string, count int) {
	Debug("sources resolved", "output", output, "files", count)
}

// LogInvocation logs the argument vector about to be executed.
func LogInvocation(executable string, args []string) {
	Debug("running toolchain", "exe", executable, "args", args)
}

// LogCacheHit logs a cache short-circuit.
func LogCacheHit(output, key string) {
	Info("cache hit", "output", output, "key", shortKey(key))
}

// LogCacheError logs a cache backend failure. Cache failures never fail a build.
func LogCacheError(op string, err error) {
	Warn("cache unavailable", "op", op, "err", err)
}

// LogDiagnostic logs a toolchain diagnostic at a level matching its severity.
func LogDiagnostic(severity, file string, line int, msg string) {
	switch severity {
	case "error":
		Error("compilation error", "file", file, "line", line, "message", msg)
	case "warning":
		Warn("compilation warning", "file", file, "line", line, "message", msg)
	default:
		Debug("compiler note", "file", file, "line", line, "message", msg)
	}
}

// LogCompileComplete logs the end of one compile call.
func LogCompileComplete(output string, success bool, duration string) {
	if success {
		Info("compilation successful", "output", output, "duration", duration)
	} else {
		Error("compilation failed", "output", output, "duration", duration)
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
