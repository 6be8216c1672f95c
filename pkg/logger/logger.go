// Package logger wraps zerolog with the conventions used across the service.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog logger
type Logger struct {
	logger zerolog.Logger
}

// New creates a new logger instance.
// format is "json" (default) or "console"; output is "stdout", "stderr" or a file path.
func New(level, format, output string) *Logger {
	logLevel := parseLevel(level)
	zerolog.SetGlobalLevel(logLevel)

	var writer io.Writer
	switch output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open log file")
		}
		writer = file
	}

	if format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer}
	}

	logger := zerolog.New(writer).Level(logLevel).With().Timestamp().Caller().Logger()

	return &Logger{logger: logger}
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// parseLevel converts string level to zerolog.Level
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the given component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", name).Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() zerolog.Level {
	return l.logger.GetLevel()
}
