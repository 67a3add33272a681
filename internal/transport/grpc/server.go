package grpcx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName      = "chat.v1.HistoryService"
	MethodGetHistory = "/" + ServiceName + "/GetHistory"
	mdAuthorization  = "authorization"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

type HistoryReader interface {
	ReadHistory(ctx context.Context, requester domain.UserID, roomID domain.RoomID, page, size int) (domain.Page, error)
}

// Server — gRPC-доступ к истории комнаты. Запрос и ответ — google.protobuf.Struct:
// {room_id, page, size} -> страница в том же виде, что и в HTTP API.
type Server struct {
	verifier Verifier
	history  HistoryReader
}

func NewServer(verifier Verifier, history HistoryReader) *Server {
	return &Server{verifier: verifier, history: history}
}

// historyService — серверная сторона chat.v1.HistoryService.
type historyService interface {
	GetHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var historyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*historyService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetHistory", Handler: getHistoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chat/v1/history.proto",
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(historyService).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetHistory}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(historyService).GetHistory(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register регистрирует HistoryService и стандартный health.
func Register(grpcServer *grpc.Server, s *Server) *health.Server {
	grpcServer.RegisterService(&historyServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

// -------- helpers --------

func (s *Server) identityFromMD(ctx context.Context) (domain.UserID, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, "missing metadata")
	}
	token, err := security.BearerToken(first(md.Get(mdAuthorization)))
	if err != nil {
		return 0, status.Error(codes.Unauthenticated, "missing authorization")
	}
	uid, err := s.verifier.Verify(ctx, token)
	if err != nil {
		logger.FromContext(ctx).Info("grpcx.identityFromMD: rejected", slog.Any("err", err))
		return 0, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return uid, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}

	return ss[0]
}

func intField(in *structpb.Struct, name string) (int64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, name)
	}
	return int64(n.NumberValue), nil
}

// toStruct переводит ответ через JSON, чтобы поля совпадали с HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrAuthorization):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// -------- methods --------

func (s *Server) GetHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	uid, err := s.identityFromMD(ctx)
	if err != nil {
		return nil, err
	}
	roomID, err := intField(in, "room_id")
	if err != nil {
		return nil, mapErr(err)
	}
	if roomID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "room_id is required")
	}
	page, err := intField(in, "page")
	if err != nil {
		return nil, mapErr(err)
	}
	size, err := intField(in, "size")
	if err != nil {
		return nil, mapErr(err)
	}

	out, err := s.history.ReadHistory(ctx, uid, domain.RoomID(roomID), int(page), int(size))
	if err != nil {
		if status.Code(mapErr(err)) == codes.Internal {
			logger.FromContext(ctx).Error("grpcx.GetHistory:", slog.Any("err", err))
		}
		return nil, mapErr(err)
	}
	resp, err := toStruct(out)
	if err != nil {
		logger.FromContext(ctx).Error("grpcx.GetHistory: encode", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return resp, nil
}
