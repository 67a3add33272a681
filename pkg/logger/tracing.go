package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing ставит глобальный TracerProvider без экспортёра:
// span-ы дают trace_id/span_id в логах. Возвращает функцию остановки.
func InitTracing() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
