// Package logger builds the zerolog root logger for marketd. Components
// derive their own loggers from it with a component field, so every line a
// tier or job emits carries its origin.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the log level and output shape.
type Config struct {
	Level  string // debug, info, warn or error
	Pretty bool   // console writer for local runs, JSON otherwise
}

// New builds the root logger. Unknown levels fall back to info rather than
// failing startup.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger routes the zerolog package-level logger through l, so
// third-party code logging via zerolog/log lands in the same stream.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
