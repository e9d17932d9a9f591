// Package logger builds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultFile is where Init writes.
const DefaultFile = "memtier.log"

var log = zerolog.Nop()

// Init logs JSON to memtier.log in the current directory. Log level comes
// from LOG_LEVEL (trace, debug, info, warn, error).
func Init() (zerolog.Logger, error) {
	return InitWithOptions(DefaultFile, false)
}

// InitWithOptions initializes the logger. An empty logFile logs to stdout;
// pretty switches stdout to zerolog's console writer and is ignored for
// files.
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))

	var output io.Writer
	event := func(e *zerolog.Event) *zerolog.Event { return e.Str("output", "stdout") }
	switch {
	case logFile != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output = file
		event = func(e *zerolog.Event) *zerolog.Event { return e.Str("path", logFile) }
	case pretty:
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	default:
		output = os.Stdout
	}

	log = New(output, level)
	event(log.Info()).Str("level", level.String()).Msg("Logger initialized")
	return log, nil
}

// New returns a timestamped logger writing to w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Get returns the logger set by the last Init call, or a no-op logger.
func Get() zerolog.Logger { return log }

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
