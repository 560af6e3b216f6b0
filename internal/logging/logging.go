// Package logging builds the zerolog loggers handed to library packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a config or environment value onto a zerolog level.
// Empty selects info; "off", "false" and "0" disable logging.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "off", "false", "0", "disabled":
		return zerolog.Disabled, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.TrimSpace(strings.ToLower(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// New returns a timestamped logger writing to w at level.
// A nil writer selects stderr; stdout carries the MCP protocol.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewConsole is New with human-readable output, for the CLI
func NewConsole(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return New(cw, level)
}
