// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Format selects how log lines are written
type Format string

const (
	FormatAuto    Format = "auto" // console on a terminal, JSON otherwise
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Setup points the global logger at out and sets the level.
func Setup(out io.Writer, format Format, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if format == FormatAuto {
		format = FormatJSON
		if isTerminal(out) {
			format = FormatConsole
		}
	}

	if format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Quiet drops everything below error level.
func Quiet() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
