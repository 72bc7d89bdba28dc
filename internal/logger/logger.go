// Package logger provides a zerolog logger shared by all components.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// InitLog returns a JSON logger writing to stderr.
func InitLog() *zerolog.Logger {
	return NewLogger(os.Stderr)
}

// NewLogger returns a JSON logger writing to w.
func NewLogger(w io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	Logger := zerolog.New(w).With().Timestamp().Logger()
	return &Logger
}

// SetLevel sets the global level, unknown or empty values leave it at info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// FromContext returns the request-scoped logger stored in ctx, or fallback when there is none.
func FromContext(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}
