package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/chat-service/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor: логирование + recovery + deadline guard (если у вызова нет deadline).
func UnaryServerInterceptor(defaultTimeout time.Duration) grpc.UnaryServerInterceptor {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
			defer cancel()
		}
		ctx, span := otel.Tracer("chat-service/grpc").Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		ctx = logger.With(ctx, slog.String("method", info.FullMethod))
		l := logger.FromContext(ctx)

		defer func() {
			if r := recover(); r != nil {
				l.Error("grpc unary panic",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
			code := status.Code(err)
			lvl := slog.LevelInfo
			switch code {
			case codes.OK, codes.NotFound, codes.InvalidArgument, codes.FailedPrecondition:
			case codes.Unauthenticated, codes.PermissionDenied:
				lvl = slog.LevelWarn
			default:
				lvl = slog.LevelError
			}
			l.Log(ctx, lvl, "grpc unary",
				slog.String("code", code.String()),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
				slog.String("err", errString(err)))
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				slog.Error("grpc stream panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			slog.Debug("grpc stream",
				"method", info.FullMethod,
				"dur_ms", time.Since(start).Milliseconds(),
				"err", errString(err))
		}()

		return handler(srv, ss)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
