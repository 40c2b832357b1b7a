package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
}

// New builds the process root logger. The app identity is attached here
// once; every component derives its own sub-logger from this one, so all
// records of one monitor instance share the same app/env fields.
func New(cfg Config, name, environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	builder := zerolog.New(writerFor(cfg)).Level(level).With().
		Timestamp().
		Str("app", name).
		Str("env", environment)
	if cfg.Caller {
		builder = builder.Caller()
	}
	return builder.Logger()
}

// writerFor selects console rendering for interactive use and plain JSON
// lines otherwise. Both write to stdout; the daemon leaves routing to the
// process supervisor.
func writerFor(cfg Config) io.Writer {
	if cfg.PrettyPrint || strings.EqualFold(cfg.Format, "console") {
		return zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}
	return os.Stdout
}
