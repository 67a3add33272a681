package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errAlreadyConnected = fmt.Errorf("%w: session is already authenticated", domain.ErrConflict)

// Session — одно WebSocket-подключение. Identity задаётся один раз успешным CONNECT.
// Пишет в сокет только writer-горутина; остальные кладут кадры в очередь out.
type Session struct {
	id        string
	conn      *websocket.Conn
	createdAt time.Time

	mu       sync.RWMutex
	identity domain.UserID
	log      *slog.Logger

	out      chan []byte
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{} // закрывается, когда writer вышел
}

func newSession(conn *websocket.Conn, buffer int) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		conn:      conn,
		createdAt: time.Now(),
		log:       slog.Default().With(slog.String("session", id)),
		out:       make(chan []byte, buffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.identity > 0
}

func (s *Session) bind(id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity > 0 {
		return errAlreadyConnected
	}
	s.identity = id
	s.log = s.log.With(slog.Int64("user_id", int64(id)))
	return nil
}

func (s *Session) logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log
}

// Deliver ставит кадр в очередь без блокировки.
func (s *Session) Deliver(frame []byte) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) send(f ServerFrame) bool {
	b, err := json.Marshal(f)
	if err != nil {
		s.logger().Error("ws.Session.send: encode", slog.Any("err", err))
		return false
	}
	return s.Deliver(b)
}

// Kick останавливает writer: он дописывает очередь и закрывает сокет.
func (s *Session) Kick() {
	s.quitOnce.Do(func() { close(s.quit) })
}

type writerConfig struct {
	pingEvery    time.Duration
	writeTimeout time.Duration
	onPing       func()
}

func (s *Session) writeLoop(cfg writerConfig) {
	defer close(s.done)
	defer func() { _ = s.conn.Close() }()

	ticker := time.NewTicker(cfg.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case b := <-s.out:
			if err := s.write(b, cfg.writeTimeout); err != nil {
				s.logger().Debug("ws.Session.writeLoop: write", slog.Any("err", err))
				s.Kick()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.writeTimeout)); err != nil {
				s.Kick()
				return
			}
			if cfg.onPing != nil {
				cfg.onPing()
			}
		case <-s.quit:
			s.drain(cfg.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(cfg.writeTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.logger().Debug("ws.Session.writeLoop: close", slog.Any("err", err))
			}
			return
		}
	}
}

func (s *Session) drain(timeout time.Duration) {
	for {
		select {
		case b := <-s.out:
			if err := s.write(b, timeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(b []byte, timeout time.Duration) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}
