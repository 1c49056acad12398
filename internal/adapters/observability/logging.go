package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger returns the process logger: console output for APP_ENV=dev|development,
// JSON lines otherwise. Debug level is enabled outside prod.
func NewLogger(env string) zerolog.Logger {
	level := zerolog.InfoLevel
	if env != "prod" && env != "production" {
		level = zerolog.DebugLevel
	}
	if env == "dev" || env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// Component derives a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
