package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	loggerKey contextKey = iota
	attrsKey
)

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithAttrs adds key/value pairs that L attaches to every record.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(attrsKey).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey, merged)
}

// Attrs returns the pairs added with WithAttrs.
func Attrs(ctx context.Context) []any {
	attrs, _ := ctx.Value(attrsKey).([]any)
	return attrs
}

// L returns the context logger with the context attributes attached.
func L(ctx context.Context) *slog.Logger {
	l := FromContext(ctx)
	if attrs := Attrs(ctx); len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}
