package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwrk-planet/chat-service/internal/domain"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/pkg/httputil"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type HistoryReader interface {
	ReadHistory(ctx context.Context, requester domain.UserID, roomID domain.RoomID, page, size int) (domain.Page, error)
}

type RoomManager interface {
	CreateRoom(ctx context.Context, creator domain.UserID, kind domain.RoomKind, name, description string) (*domain.Room, error)
	GetOrCreateDM(ctx context.Context, requester, peer domain.UserID) (*domain.Room, bool, error)
	AddMember(ctx context.Context, roomID domain.RoomID, requester, target domain.UserID) (*domain.Membership, error)
	RemoveMember(ctx context.Context, roomID domain.RoomID, requester, target domain.UserID) error
	DeactivateRoom(ctx context.Context, roomID domain.RoomID, requester domain.UserID) error
	ListMembers(ctx context.Context, roomID domain.RoomID, requester domain.UserID) ([]domain.Membership, error)
}

type Handler struct {
	history HistoryReader
	rooms   RoomManager
}

func NewHandler(history HistoryReader, rooms RoomManager) *Handler {
	return &Handler{history: history, rooms: rooms}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// GET /api/messages/{roomId}?page=&size=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomParam(r, "roomId")
	if err != nil {
		h.fail(w, r, "handler.History", err)
		return
	}
	page, size := queryInt(r, "page", 0), queryInt(r, "size", 0)

	out, err := h.history.ReadHistory(r.Context(), httpmw.UserIDFromCtx(r.Context()), roomID, page, size)
	if err != nil {
		h.fail(w, r, "handler.History", err)
		return
	}
	httputil.OK(w, out)
}

// POST /api/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "handler.CreateRoom", err)
		return
	}
	kind, err := domain.ParseRoomKind(req.Kind)
	if err != nil {
		h.fail(w, r, "handler.CreateRoom", err)
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), httpmw.UserIDFromCtx(r.Context()), kind, req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "handler.CreateRoom", err)
		return
	}
	httputil.Created(w, room)
}

// POST /api/rooms/direct
func (h *Handler) DirectRoom(w http.ResponseWriter, r *http.Request) {
	var req DirectRoomRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "handler.DirectRoom", err)
		return
	}

	room, created, err := h.rooms.GetOrCreateDM(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.PeerID)
	if err != nil {
		h.fail(w, r, "handler.DirectRoom", err)
		return
	}
	resp := DirectRoomResponse{Room: room, Created: created}
	if created {
		httputil.Created(w, resp)
		return
	}
	httputil.OK(w, resp)
}

// GET /api/rooms/{id}/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomParam(r, "id")
	if err != nil {
		h.fail(w, r, "handler.ListMembers", err)
		return
	}
	items, err := h.rooms.ListMembers(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		h.fail(w, r, "handler.ListMembers", err)
		return
	}
	if items == nil {
		items = []domain.Membership{}
	}
	httputil.OK(w, MembersResponse{Items: items})
}

// POST /api/rooms/{id}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomParam(r, "id")
	if err != nil {
		h.fail(w, r, "handler.AddMember", err)
		return
	}
	var req AddMemberRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "handler.AddMember", err)
		return
	}

	m, err := h.rooms.AddMember(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context()), req.UserID)
	if err != nil {
		h.fail(w, r, "handler.AddMember", err)
		return
	}
	httputil.Created(w, m)
}

// DELETE /api/rooms/{id}/members/{userId}
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomParam(r, "id")
	if err != nil {
		h.fail(w, r, "handler.RemoveMember", err)
		return
	}
	target, err := domain.ParseUserID(chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, "handler.RemoveMember", err)
		return
	}

	if err := h.rooms.RemoveMember(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context()), target); err != nil {
		h.fail(w, r, "handler.RemoveMember", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/rooms/{id}/deactivate
func (h *Handler) DeactivateRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomParam(r, "id")
	if err != nil {
		h.fail(w, r, "handler.DeactivateRoom", err)
		return
	}
	if err := h.rooms.DeactivateRoom(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		h.fail(w, r, "handler.DeactivateRoom", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail отвечает ошибкой по категории. Внутренние детали клиенту не уходят.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op+":", slog.Any("err", err))
		msg = "internal error"
	}
	httputil.Error(r.Context(), w, status, code, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized, "authentication"
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden, "authorization"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json", domain.ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", domain.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func roomParam(r *http.Request, name string) (domain.RoomID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid room id", domain.ErrValidation)
	}
	return domain.RoomID(id), nil
}

// queryInt — нечисловое значение считается отсутствующим, нормализует сервис.
func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
