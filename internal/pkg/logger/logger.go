// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger for the named service at the level implied
// by verbosity. Output goes to stderr as JSON, or in console form when
// stderr is a terminal.
func New(service string, verbosity int) zerolog.Logger {
	var out = zerolog.LevelWriter(zerolog.MultiLevelWriter(os.Stderr))
	if isTerminal(os.Stderr.Fd()) {
		out = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    true,
		})
	}
	return zerolog.New(out).
		Level(LevelFor(verbosity)).
		With().
		Str("service", service).
		Timestamp().
		Logger()
}

// LevelFor maps the numeric -v verbosity to a zerolog level: info by
// default, debug above 3, trace above 7.
func LevelFor(verbosity int) zerolog.Level {
	switch {
	case verbosity > 7:
		return zerolog.TraceLevel
	case verbosity > 3:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
