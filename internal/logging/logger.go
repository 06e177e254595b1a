// Package logging builds the zerolog logger shared by the flow services.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination of log output.
// Nested under config.Config it reads LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT.
type Config struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
	Output string `envconfig:"OUTPUT" default:"stderr"`
}

// New returns a logger configured by cfg.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log output %q", cfg.Output)
	}
	return NewWithWriter(out, level, cfg.Format), nil
}

// NewWithWriter builds a logger on an explicit writer.
func NewWithWriter(out io.Writer, level zerolog.Level, format string) zerolog.Logger {
	if strings.ToLower(format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", "flow").
		Logger()
}
