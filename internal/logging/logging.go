// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Option configures New.
type Option func(*config)

type config struct {
	format string
	level  slog.Level
	output io.Writer
}

// WithFormat selects "text" (default) or "json" output.
func WithFormat(format string) Option {
	return func(c *config) {
		c.format = strings.ToLower(strings.TrimSpace(format))
	}
}

func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithOutput sets the destination. Defaults to stderr so stdout stays free
// for structured results.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// New builds a logger from opts.
func New(opts ...Option) *slog.Logger {
	c := &config{format: "text", level: slog.LevelInfo, output: os.Stderr}
	for _, opt := range opts {
		opt(c)
	}

	ho := &slog.HandlerOptions{Level: c.level}
	var h slog.Handler
	if c.format == "json" {
		h = slog.NewJSONHandler(c.output, ho)
	} else {
		h = slog.NewTextHandler(c.output, ho)
	}
	return slog.New(h)
}

// Setup builds a logger and installs it as the slog default.
func Setup(opts ...Option) *slog.Logger {
	l := New(opts...)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
