// Package logging builds the charmbracelet loggers shared by the binaries.
package logging

import (
	"context"
	"fmt"
	"io"

	charmlog "github.com/charmbracelet/log"
)

// New returns a logger writing to w at the named level ("debug", "info",
// "warn", "error"). Debug loggers also report the caller.
func New(w io.Writer, level, prefix string) (*charmlog.Logger, error) {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		ReportCaller:    lvl == charmlog.DebugLevel,
		ReportTimestamp: true,
		Prefix:          prefix,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *charmlog.Logger {
	return charmlog.New(io.Discard)
}

// WithContext stores l in ctx for code that only has the context.
func WithContext(ctx context.Context, l *charmlog.Logger) context.Context {
	return context.WithValue(ctx, charmlog.ContextKey, l)
}

// FromContext returns the logger stored by WithContext, or the default
// logger.
func FromContext(ctx context.Context) *charmlog.Logger {
	return charmlog.FromContext(ctx)
}
