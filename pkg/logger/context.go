package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const loggerKey ctxKey = iota

// WithContext кладёт *slog.Logger в контекст.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// With добавляет атрибуты к логгеру из контекста. Trace id сюда не попадают,
// их добавляет FromContext при каждом вызове.
func With(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, stored(ctx).With(args...))
}

// FromContext извлекает логгер из контекста, а если его нет — возвращает глобальный.
// Trace/span id из контекста добавляются, если есть активный span.
func FromContext(ctx context.Context) *slog.Logger {
	l := stored(ctx)
	if attrs := AttrsFromCtx(ctx); len(attrs) > 0 {
		args := make([]any, len(attrs))
		for i, a := range attrs {
			args[i] = a
		}
		l = l.With(args...)
	}
	return l
}

func stored(ctx context.Context) *slog.Logger {
	if v, ok := ctx.Value(loggerKey).(*slog.Logger); ok && v != nil {
		return v
	}
	return L()
}
