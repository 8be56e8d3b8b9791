package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func NewLogger(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	if strings.EqualFold(env, "dev") {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if strings.EqualFold(env, "dev") {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Str("service", "tracker-api").Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "tracker-api").Logger()
}

// NewCLILogger writes human-readable logs to w, which should not be the
// stream command output goes to. Only warnings show unless verbose is set.
func NewCLILogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()
}
