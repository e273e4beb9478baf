package otel

import (
	"context"
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// NewLogger returns the process logger: JSON lines on w, and, when the providers export,
// the same records bridged to the OTel LoggerProvider. Records below level are dropped.
func (p *Providers) NewLogger(name string, w io.Writer, level slog.Level) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if p != nil && p.Exporting && p.LoggerProvider != nil {
		h = fanout(h, level, otelslog.NewHandler(name, otelslog.WithLoggerProvider(p.LoggerProvider)))
	}
	return slog.New(h)
}

// fanout sends every record to primary and records at or above level to secondary.
func fanout(primary slog.Handler, level slog.Level, secondary slog.Handler) slog.Handler {
	atLevel := slogmulti.NewEnabledInlineMiddleware(
		func(ctx context.Context, l slog.Level, next func(context.Context, slog.Level) bool) bool {
			return l >= level && next(ctx, l)
		},
	)
	return slogmulti.Fanout(primary, slogmulti.Pipe(atLevel).Handler(secondary))
}
