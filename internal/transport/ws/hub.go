package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/topic"
)

var ErrHubClosed = errors.New("hub closed")

// Subscriber — получатель рассылки. Deliver не блокирует: false означает,
// что очередь полна или сессия закрыта.
type Subscriber interface {
	ID() string
	Deliver(frame []byte) bool
	Kick()
}

// Hub — реестр topic -> подписчики. Живёт от старта процесса до Close.
// Publish снимает снапшот подписчиков под RLock и раскладывает по очередям вне блокировки.
// Публикации сериализованы, поэтому события одной комнаты каждая сессия видит в порядке публикации.
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[string]Subscriber // topic key -> session id -> subscriber
	sessions  map[string]Subscriber
	bySession map[string]map[string]struct{} // session id -> topic keys
	closed    bool

	pubMu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		topics:    make(map[string]map[string]Subscriber),
		sessions:  make(map[string]Subscriber),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Register учитывает подключение, чтобы Close мог его закрыть.
func (h *Hub) Register(s Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.sessions[s.ID()] = s
	return nil
}

// Subscribe идемпотентен: повторная подписка на тот же ключ ничего не меняет.
func (h *Hub) Subscribe(key string, s Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	subs, ok := h.topics[key]
	if !ok {
		subs = make(map[string]Subscriber)
		h.topics[key] = subs
	}
	subs[s.ID()] = s

	keys, ok := h.bySession[s.ID()]
	if !ok {
		keys = make(map[string]struct{})
		h.bySession[s.ID()] = keys
	}
	keys[key] = struct{}{}
	h.sessions[s.ID()] = s
	return nil
}

func (h *Hub) Unsubscribe(key, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(key, sessionID)
}

func (h *Hub) unsubscribeLocked(key, sessionID string) {
	if subs, ok := h.topics[key]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(h.topics, key)
		}
	}
	if keys, ok := h.bySession[sessionID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(h.bySession, sessionID)
		}
	}
}

// RemoveSession убирает сессию из всех топиков. Вызывается при отключении.
func (h *Hub) RemoveSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key := range h.bySession[sessionID] {
		h.unsubscribeLocked(key, sessionID)
	}
	delete(h.bySession, sessionID)
	delete(h.sessions, sessionID)
}

// Publish доставляет событие всем подписчикам ключа destination
// (room/7/edit -> подписчики room/7). Переполненная сессия отключается,
// остальные получают событие.
func (h *Hub) Publish(destination string, ev domain.Event) {
	key, err := topic.KeyOf(destination)
	if err != nil {
		slog.Error("ws.Hub.Publish: bad destination", slog.String("destination", destination), slog.Any("err", err))
		return
	}
	frame, err := json.Marshal(ServerFrame{Command: CmdMessage, Destination: destination, Payload: &ev})
	if err != nil {
		slog.Error("ws.Hub.Publish: encode", slog.String("destination", destination), slog.Any("err", err))
		return
	}

	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	for _, s := range h.snapshot(key) {
		if !s.Deliver(frame) {
			slog.Warn("ws.Hub.Publish: slow consumer dropped",
				slog.String("session", s.ID()),
				slog.String("destination", destination),
			)
			s.Kick()
		}
	}
}

func (h *Hub) snapshot(key string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.topics[key]
	out := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.topics[key])
}

// Close закрывает все сессии и запрещает новые подписки.
func (h *Hub) Close() {
	h.mu.Lock()
	all := make([]Subscriber, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.closed = true
	h.topics = make(map[string]map[string]Subscriber)
	h.bySession = make(map[string]map[string]struct{})
	h.sessions = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, s := range all {
		s.Kick()
	}
}
