//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
package service

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// RoomStore — реляционное хранилище комнат.
type RoomStore interface {
	Create(ctx context.Context, room *domain.Room, members []domain.Membership) error
	Get(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	FindDirect(ctx context.Context, a, b domain.UserID) (*domain.Room, error)
	Deactivate(ctx context.Context, id domain.RoomID) error
}

// MembershipStore — реляционное хранилище участников комнат.
type MembershipStore interface {
	IsMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error)
	HasRole(ctx context.Context, roomID domain.RoomID, userID domain.UserID, role domain.Role) (bool, error)
	ListMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Membership, error)
	AddMember(ctx context.Context, m domain.Membership) error
	RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
}

// MessageStore — документное хранилище сообщений.
type MessageStore interface {
	Save(ctx context.Context, m *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// Mutate атомарно применяет fn к документу; false из fn означает «без изменений».
	Mutate(ctx context.Context, id string, fn func(*domain.Message) (bool, error)) (*domain.Message, error)
	PageByRoom(ctx context.Context, roomID domain.RoomID, page, size int) (domain.Page, error)
}

// Publisher ставит событие в очереди всех подписчиков топика до возврата.
type Publisher interface {
	Publish(destination string, ev domain.Event)
}

// SystemPoster пишет системные сообщения в комнату.
type SystemPoster interface {
	PostSystem(ctx context.Context, roomID domain.RoomID, content string) (*domain.Message, error)
}
