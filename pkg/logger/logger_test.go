package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	require.Equal(t, EnvDev, DetectEnv())

	t.Setenv("APP_ENV", "staging")
	require.Equal(t, EnvStage, DetectEnv())

	t.Setenv("APP_ENV", "Production")
	require.Equal(t, EnvProd, DetectEnv())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	l := Init(Config{
		Service: "chat",
		Version: "v0.0.1",
		Env:     EnvDev,
		Backend: BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	l.Info("hello world")

	out := buf.String()
	require.False(t, strings.HasPrefix(out, "{"), "expected text output, got %s", out)
	require.Contains(t, out, "hello world")
	require.Contains(t, out, "service=chat")
	require.Contains(t, out, "env=dev")
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := Init(Config{
		Service:          "chat",
		Version:          "1.2.3",
		Env:              EnvProd,
		Backend:          BackendZap,
		Level:            slog.LevelInfo,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})
	l.Info("booted", slog.String("k", "v"))
	l.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	require.Equal(t, "booted", m["msg"])
	require.Equal(t, "chat", m["service"])
	require.Equal(t, "prod", m["env"])
	require.Equal(t, "1.2.3", m["version"])
	require.Equal(t, "INFO", m["level"])
	require.Equal(t, "v", m["k"])
}

func TestFromContext_TraceIDs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "chat", Env: EnvProd, Backend: BackendStd, Output: &buf})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	FromContext(ctx).Info("with trace")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	require.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])
}

func TestFromContext_ScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := Init(Config{Service: "chat", Env: EnvProd, Backend: BackendStd, Output: &buf})

	ctx := WithContext(context.Background(), base.With(slog.String("session", "s1")))
	FromContext(ctx).Info("scoped")

	require.Contains(t, buf.String(), `"session":"s1"`)
	require.Nil(t, AttrsFromCtx(context.Background()))
}

func TestWith_DoesNotDuplicateTraceAttrs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "chat", Env: EnvProd, Backend: BackendStd, Output: &buf})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = With(ctx, "req_id", "r1")
	ctx = With(ctx, "user_id", "7")
	FromContext(ctx).Info("scoped")

	line := buf.String()
	require.Equal(t, 1, strings.Count(line, `"trace_id"`))
	require.Contains(t, line, `"req_id":"r1"`)
	require.Contains(t, line, `"user_id":"7"`)
}
