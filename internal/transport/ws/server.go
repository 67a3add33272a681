package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/presence"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
	"github.com/cwrk-planet/chat-service/internal/topic"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

type Guard interface {
	Authorize(ctx context.Context, identity domain.UserID, action service.Action, roomID domain.RoomID) error
}

type MessageSvc interface {
	Create(ctx context.Context, roomID domain.RoomID, sender domain.UserID, content string, typ domain.MessageType) (*domain.Message, error)
	Edit(ctx context.Context, roomID domain.RoomID, messageID string, requester domain.UserID, content string) (*domain.Message, error)
	SoftDelete(ctx context.Context, roomID domain.RoomID, messageID string, requester domain.UserID) error
}

type MemberSvc interface {
	ListMembers(ctx context.Context, roomID domain.RoomID, requester domain.UserID) ([]domain.Membership, error)
}

type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	ReadLimit      int64
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 16
	}
	return c
}

// Server — шлюз: одна сессия на подключение, каждый входящий кадр проходит через неё.
type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	verifier Verifier
	guard    Guard
	messages MessageSvc
	members  MemberSvc
	presence presence.Tracker
	cfg      Config
}

func NewServer(hub *Hub, verifier Verifier, guard Guard, messages MessageSvc, members MemberSvc, tracker presence.Tracker, cfg Config) *Server {
	cfg = cfg.withDefaults()
	if tracker == nil {
		tracker = presence.Nop{}
	}
	return &Server{
		hub:      hub,
		verifier: verifier,
		guard:    guard,
		messages: messages,
		members:  members,
		presence: tracker,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.ContainsBy(allowed, func(a string) bool {
			return strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host)
		})
	}
}

// HandleWS — GET /ws. Личность передаётся только в кадре CONNECT.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws.Server.HandleWS: upgrade failed", slog.Any("err", err))
		return
	}

	sess := newSession(conn, s.cfg.SendBuffer)
	if err := s.hub.Register(sess); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}

	ctx := r.Context()
	sess.logger().Debug("ws.Server.HandleWS: connected", slog.String("remote", r.RemoteAddr))

	go sess.writeLoop(writerConfig{
		pingEvery:    s.cfg.PingInterval,
		writeTimeout: s.cfg.WriteTimeout,
		onPing:       func() { s.touch(ctx, sess) },
	})
	s.readLoop(ctx, sess)

	s.hub.RemoveSession(sess.ID())
	if uid, ok := sess.Identity(); ok {
		if err := s.presence.Leave(ctx, uid, sess.ID()); err != nil {
			sess.logger().Debug("ws.Server.HandleWS: presence leave", slog.Any("err", err))
		}
	}
	sess.Kick()
	<-sess.done
	sess.logger().Debug("ws.Server.HandleWS: disconnected", slog.Duration("lifetime", time.Since(sess.createdAt)))
}

func (s *Server) readLoop(ctx context.Context, sess *Session) {
	c := sess.conn
	c.SetReadLimit(s.cfg.ReadLimit)
	_ = c.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		s.touch(ctx, sess)
		return nil
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.logger().Debug("ws.Server.readLoop: read", slog.Any("err", err))
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			if _, ok := sess.Identity(); !ok {
				sess.send(errorFrame("", domain.ErrUnauthenticated))
				return
			}
			sess.send(errorFrame("", fmt.Errorf("%w: malformed frame", domain.ErrValidation)))
			continue
		}
		if !s.dispatch(ctx, sess, &f) {
			return
		}
	}
}

// dispatch обрабатывает один кадр; false — подключение нужно закрыть.
func (s *Server) dispatch(ctx context.Context, sess *Session, f *ClientFrame) bool {
	uid, ok := sess.Identity()
	if !ok {
		if f.Command != CmdConnect {
			sess.send(errorFrame(f.Receipt, domain.ErrUnauthenticated))
			return false
		}
		return s.connect(ctx, sess, f)
	}

	var err error
	switch f.Command {
	case CmdConnect:
		err = errAlreadyConnected
	case CmdSubscribe:
		err = s.subscribe(ctx, sess, uid, f.Destination)
	case CmdUnsubscribe:
		err = s.unsubscribe(sess, uid, f.Destination)
	case CmdSend:
		err = s.sendFrame(ctx, sess, uid, f)
	case CmdDisconnect:
		s.receipt(sess, f.Receipt)
		return false
	default:
		err = fmt.Errorf("%w: unknown command %q", domain.ErrValidation, f.Command)
	}

	if err != nil {
		s.logFrameError(sess, f, err)
		sess.send(errorFrame(f.Receipt, err))
		return true
	}
	s.receipt(sess, f.Receipt)
	return true
}

func (s *Server) connect(ctx context.Context, sess *Session, f *ClientFrame) bool {
	token, err := security.BearerToken(f.Header("Authorization"))
	if err != nil {
		sess.send(errorFrame(f.Receipt, err))
		return false
	}
	uid, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthentication) {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
		}
		sess.logger().Info("ws.Server.connect: rejected", slog.Any("err", err))
		sess.send(errorFrame(f.Receipt, err))
		return false
	}
	if err := sess.bind(uid); err != nil {
		sess.send(errorFrame(f.Receipt, err))
		return true
	}

	s.touch(ctx, sess)
	sess.send(ServerFrame{Command: CmdConnected, Session: sess.ID(), UserID: uid, Receipt: f.Receipt})
	sess.logger().Info("ws.Server.connect: authenticated")
	return true
}

func (s *Server) subscribe(ctx context.Context, sess *Session, uid domain.UserID, dest string) error {
	route, err := topic.Parse(dest)
	if err != nil {
		return err
	}

	switch route.Kind {
	case topic.KindRoom:
		if err := s.guard.Authorize(ctx, uid, service.ActionSubscribe, route.RoomID); err != nil {
			return err
		}
		if err := s.hub.Subscribe(route.Key(), sess); err != nil {
			return err
		}
		s.sendRoomState(ctx, sess, uid, route.RoomID)
		return nil
	case topic.KindUser:
		if route.UserID != uid {
			return errForeignUserTopic
		}
		return s.hub.Subscribe(route.Key(), sess)
	default:
		return fmt.Errorf("%w: cannot subscribe to %q", domain.ErrValidation, dest)
	}
}

var errForeignUserTopic = fmt.Errorf("%w: user destination belongs to another user", domain.ErrAuthorization)

func (s *Server) unsubscribe(sess *Session, uid domain.UserID, dest string) error {
	route, err := topic.Parse(dest)
	if err != nil {
		return err
	}
	if route.Kind == topic.KindUser && route.UserID != uid {
		return errForeignUserTopic
	}
	s.hub.Unsubscribe(route.Key(), sess.ID())
	return nil
}

func (s *Server) sendFrame(ctx context.Context, sess *Session, uid domain.UserID, f *ClientFrame) error {
	route, err := topic.Parse(f.Destination)
	if err != nil {
		return err
	}

	switch route.Kind {
	case topic.KindRoom:
		return s.sendRoom(ctx, uid, route, f.Payload)
	case topic.KindUser:
		if route.UserID != uid {
			return errForeignUserTopic
		}
		var data any
		if len(f.Payload) > 0 {
			data = f.Payload
		}
		s.hub.Publish(route.Destination(), domain.Event{Type: domain.EventUserRelay, Data: data})
		return nil
	case topic.KindSystem:
		if route.Rest != "ping" {
			return fmt.Errorf("%w: unknown system destination %q", domain.ErrValidation, route.Rest)
		}
		s.touch(ctx, sess)
		return nil
	}
	return topic.ErrInvalidDestination
}

func (s *Server) sendRoom(ctx context.Context, uid domain.UserID, route topic.Route, raw json.RawMessage) error {
	switch route.Op {
	case topic.OpEdit:
		var p EditPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		_, err := s.messages.Edit(ctx, route.RoomID, p.MessageID, uid, p.Content)
		return err
	case topic.OpDelete:
		var p DeletePayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		return s.messages.SoftDelete(ctx, route.RoomID, p.MessageID, uid)
	default:
		var p SendPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		_, err := s.messages.Create(ctx, route.RoomID, uid, p.Content, p.Type)
		return err
	}
}

// sendRoomState — снапшот участников комнаты с онлайн-статусом новому подписчику.
func (s *Server) sendRoomState(ctx context.Context, sess *Session, uid domain.UserID, roomID domain.RoomID) {
	members, err := s.members.ListMembers(ctx, roomID, uid)
	if err != nil {
		sess.logger().Warn("ws.Server.sendRoomState: list members", slog.Any("err", err))
		return
	}
	online, err := s.presence.Online(ctx, lo.Map(members, func(m domain.Membership, _ int) domain.UserID { return m.UserID }))
	if err != nil {
		sess.logger().Warn("ws.Server.sendRoomState: presence", slog.Any("err", err))
	}

	state := domain.RoomStateData{
		RoomID: roomID,
		Members: lo.Map(members, func(m domain.Membership, _ int) domain.RoomStateMember {
			return domain.RoomStateMember{UserID: m.UserID, Role: m.Role, Online: online[m.UserID]}
		}),
	}
	sess.send(ServerFrame{
		Command:     CmdMessage,
		Destination: topic.Room(roomID),
		Payload:     &domain.Event{Type: domain.EventRoomState, Data: state},
	})
}

func (s *Server) receipt(sess *Session, receipt string) {
	if receipt != "" {
		sess.send(ServerFrame{Command: CmdReceipt, Receipt: receipt})
	}
}

func (s *Server) touch(ctx context.Context, sess *Session) {
	uid, ok := sess.Identity()
	if !ok {
		return
	}
	if err := s.presence.Touch(ctx, uid, sess.ID()); err != nil {
		sess.logger().Debug("ws.Server.touch", slog.Any("err", err))
	}
}

func (s *Server) logFrameError(sess *Session, f *ClientFrame, err error) {
	l := sess.logger().With(
		slog.String("command", string(f.Command)),
		slog.String("destination", f.Destination),
	)
	if codeFor(err) == CodeInternal {
		l.Error("ws.Server.dispatch:", slog.Any("err", err))
		return
	}
	l.Debug("ws.Server.dispatch: rejected", slog.Any("err", err))
}
