// Package logger provides a configured zerolog logger.
package logger

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger tagged with service that writes to w at level.
// Unknown or empty levels fall back to info.
func New(service, level string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().
		Str("service", service).
		Timestamp().
		Logger()
}

// NewConsole is New with human-readable output, for interactive use.
func NewConsole(service, level string, w io.Writer) zerolog.Logger {
	return New(service, level, zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"})
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
