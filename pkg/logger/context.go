package logger

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// With returns a context carrying extra log fields (request id, acting
// admin) for everything downstream.
func With(ctx context.Context, fields ...any) context.Context {
	prev := Fields(ctx)
	merged := make([]any, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func Fields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

// Scoped annotates l with the fields carried by ctx. A nil l means the
// process logger.
func Scoped(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		l = LoggerWrapper()
	}
	fields := Fields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// From returns the process logger annotated with ctx's fields.
func From(ctx context.Context) *slog.Logger {
	return Scoped(ctx, nil)
}
