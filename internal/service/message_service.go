package service

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/topic"

	"github.com/google/uuid"
)

type MessageConfig struct {
	MaxContentLength int // в символах (рунах)
	DefaultPageSize  int
	MaxPageSize      int
}

func (c *MessageConfig) withDefaults() MessageConfig {
	out := *c
	if out.MaxContentLength <= 0 {
		out.MaxContentLength = 5000
	}
	if out.DefaultPageSize <= 0 {
		out.DefaultPageSize = 50
	}
	if out.MaxPageSize <= 0 {
		out.MaxPageSize = 100
	}
	if out.DefaultPageSize > out.MaxPageSize {
		out.DefaultPageSize = out.MaxPageSize
	}
	return out
}

// MessageService ведёт жизненный цикл сообщения: CREATED -> (EDITED)* -> DELETED.
// Каждая успешная мутация публикуется ровно один раз, после записи в хранилище.
// Ошибка записи возвращается сразу и ничего не публикуется.
type MessageService struct {
	messages MessageStore
	rooms    RoomStore
	guard    *Authorizer
	pub      Publisher
	clock    *monotonicClock
	cfg      MessageConfig
}

func NewMessageService(messages MessageStore, rooms RoomStore, guard *Authorizer, pub Publisher, cfg MessageConfig) *MessageService {
	return &MessageService{
		messages: messages,
		rooms:    rooms,
		guard:    guard,
		pub:      pub,
		clock:    newMonotonicClock(time.Now),
		cfg:      cfg.withDefaults(),
	}
}

func (s *MessageService) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return "", domain.ErrContentTooLong
	}
	return content, nil
}

// Create сохраняет сообщение участника и рассылает message.created в топик комнаты.
func (s *MessageService) Create(ctx context.Context, roomID domain.RoomID, sender domain.UserID, content string, typ domain.MessageType) (*domain.Message, error) {
	if err := s.guard.Authorize(ctx, sender, ActionPublish, roomID); err != nil {
		return nil, err
	}
	if typ == "" {
		typ = domain.MessageText
	}
	if !typ.Valid() || typ == domain.MessageSystem {
		return nil, domain.ErrInvalidType
	}
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, roomID); err != nil {
		return nil, err
	}

	m := &domain.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  sender,
		Content:   content,
		Type:      typ,
		CreatedAt: s.clock.Now(),
	}
	if err := s.messages.Save(ctx, m); err != nil {
		return nil, err
	}

	s.pub.Publish(topic.Room(roomID), domain.Event{Type: domain.EventMessageCreated, Data: *m})
	return m, nil
}

// Edit меняет текст своего сообщения. Админ комнаты чужое сообщение править не может.
// Сообщение из другой комнаты считается ненайденным.
func (s *MessageService) Edit(ctx context.Context, roomID domain.RoomID, messageID string, requester domain.UserID, content string) (*domain.Message, error) {
	if err := s.guard.Authorize(ctx, requester, ActionPublish, roomID); err != nil {
		return nil, err
	}
	m, err := s.messages.Mutate(ctx, messageID, func(m *domain.Message) (bool, error) {
		if err := checkOwned(m, roomID, requester); err != nil {
			return false, err
		}
		if m.Deleted {
			return false, domain.ErrMessageDeleted
		}
		text, err := s.validateContent(content)
		if err != nil {
			return false, err
		}
		now := s.clock.Now()
		m.Content = text
		m.Edited = true
		m.EditedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.Publish(topic.RoomOp(roomID, topic.OpEdit), domain.Event{Type: domain.EventMessageEdited, Data: *m})
	return m, nil
}

// SoftDelete помечает сообщение удалённым. Повторный вызов владельцем — успех без рассылки.
func (s *MessageService) SoftDelete(ctx context.Context, roomID domain.RoomID, messageID string, requester domain.UserID) error {
	if err := s.guard.Authorize(ctx, requester, ActionPublish, roomID); err != nil {
		return err
	}
	var changed bool
	m, err := s.messages.Mutate(ctx, messageID, func(m *domain.Message) (bool, error) {
		changed = false
		if err := checkOwned(m, roomID, requester); err != nil {
			return false, err
		}
		if m.Deleted {
			return false, nil
		}
		m.Deleted = true
		changed = true
		return true, nil
	})
	if err != nil || !changed {
		return err
	}

	s.pub.Publish(topic.RoomOp(roomID, topic.OpDelete), domain.Event{
		Type: domain.EventMessageDeleted,
		Data: domain.MessageDeletedData{ID: m.ID, RoomID: roomID},
	})
	return nil
}

// checkOwned: сообщение чужой комнаты не найдено, чужое сообщение не редактируется.
// Членство в комнате проверяется раньше, поэтому не-участник получает ErrNotMember.
func checkOwned(m *domain.Message, roomID domain.RoomID, requester domain.UserID) error {
	if m.RoomID != roomID {
		return domain.ErrMessageNotFound
	}
	if m.SenderID != requester {
		return domain.ErrNotMessageOwner
	}
	return nil
}

// ListHistory — страница неудалённых сообщений, новые первыми. Границы зажимаются, а не отвергаются.
func (s *MessageService) ListHistory(ctx context.Context, roomID domain.RoomID, page, size int) (domain.Page, error) {
	if page < 0 {
		page = 0
	}
	switch {
	case size <= 0:
		size = s.cfg.DefaultPageSize
	case size > s.cfg.MaxPageSize:
		size = s.cfg.MaxPageSize
	}
	if last := math.MaxInt/size - 1; page > last {
		page = last
	}
	return s.messages.PageByRoom(ctx, roomID, page, size)
}

// ReadHistory — ListHistory для внешнего читателя: только участникам комнаты.
func (s *MessageService) ReadHistory(ctx context.Context, requester domain.UserID, roomID domain.RoomID, page, size int) (domain.Page, error) {
	if err := s.guard.Authorize(ctx, requester, ActionSubscribe, roomID); err != nil {
		return domain.Page{}, err
	}
	return s.ListHistory(ctx, roomID, page, size)
}

// PostSystem пишет служебное сообщение от SYSTEM без проверки прав.
func (s *MessageService) PostSystem(ctx context.Context, roomID domain.RoomID, content string) (*domain.Message, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}
	m := &domain.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  domain.SystemUserID,
		Content:   content,
		Type:      domain.MessageSystem,
		CreatedAt: s.clock.Now(),
	}
	if err := s.messages.Save(ctx, m); err != nil {
		return nil, err
	}

	s.pub.Publish(topic.Room(roomID), domain.Event{Type: domain.EventMessageCreated, Data: *m})
	slog.Debug("service.MessageService.PostSystem", slog.Int64("room_id", int64(roomID)), slog.String("id", m.ID))
	return m, nil
}

func (s *MessageService) requireActive(ctx context.Context, roomID domain.RoomID) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Active {
		return domain.ErrRoomInactive
	}
	return nil
}
