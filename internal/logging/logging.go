// Package logging configures the zerolog logger used by the CLI and the parser.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// EnvPrefix is the prefix for logging environment overrides.
const EnvPrefix = "DT5202FIX_LOG"

// Profile selects the default logging settings.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config holds logger settings.
type Config struct {
	Level     string `envconfig:"LEVEL"`
	NoColor   *bool  `envconfig:"NOCOLOR"`
	Timestamp *bool  `envconfig:"TIMESTAMP"`
}

// Options are the resolved logger settings.
type Options struct {
	Level     zerolog.Level
	NoColor   bool
	Timestamp bool
}

// DefaultOptions returns the settings for a profile.
func DefaultOptions(profile Profile) Options {
	switch profile {
	case ProfileTest:
		return Options{Level: zerolog.DebugLevel, NoColor: true, Timestamp: false}
	default:
		return Options{Level: zerolog.InfoLevel, NoColor: false, Timestamp: false}
	}
}

// FromEnv applies DT5202FIX_LOG_* overrides to opts.
func FromEnv(opts Options) (Options, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return opts, err
	}
	return cfg.apply(opts), nil
}

func (c Config) apply(opts Options) Options {
	if lvl, ok := ParseLevel(c.Level); ok {
		opts.Level = lvl
	}
	if c.NoColor != nil {
		opts.NoColor = *c.NoColor
	}
	if c.Timestamp != nil {
		opts.Timestamp = *c.Timestamp
	}
	return opts
}

// New builds a console logger writing to w.
func New(w io.Writer, opts Options) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	ctx := zerolog.New(output).Level(opts.Level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// ParseLevel maps a level name (with common aliases) to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
