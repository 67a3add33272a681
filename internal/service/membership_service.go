package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/topic"
)

// MembershipService управляет комнатами и составом участников.
// Изменения состава сопровождаются системным сообщением в комнату.
type MembershipService struct {
	rooms   RoomStore
	members MembershipStore
	guard   *Authorizer
	system  SystemPoster
	pub     Publisher
	now     func() time.Time
}

func NewMembershipService(rooms RoomStore, members MembershipStore, guard *Authorizer, system SystemPoster, pub Publisher) *MembershipService {
	return &MembershipService{
		rooms:   rooms,
		members: members,
		guard:   guard,
		system:  system,
		pub:     pub,
		now:     time.Now,
	}
}

// CreateRoom создаёт GROUP или CHANNEL; создатель становится ADMIN.
func (s *MembershipService) CreateRoom(ctx context.Context, creator domain.UserID, kind domain.RoomKind, name, description string) (*domain.Room, error) {
	if creator <= 0 {
		return nil, domain.ErrUnauthenticated
	}
	if kind == domain.RoomDM {
		return nil, domain.ErrInvalidRoomKind
	}
	now := s.now().UTC()
	room, err := domain.NewRoom(kind, name, description, creator, now)
	if err != nil {
		return nil, err
	}

	members := []domain.Membership{{UserID: creator, Role: domain.RoleAdmin, JoinedAt: now}}
	if err := s.rooms.Create(ctx, room, members); err != nil {
		return nil, fmt.Errorf("rooms.Create: %w", err)
	}

	s.postSystem(ctx, room.ID, fmt.Sprintf("room %q was created by user %s", *room.Name, creator))
	return room, nil
}

// GetOrCreateDM возвращает активную DM-комнату пары или создаёт её.
// Второй флаг — true, если комната создана сейчас.
func (s *MembershipService) GetOrCreateDM(ctx context.Context, requester, peer domain.UserID) (*domain.Room, bool, error) {
	if requester <= 0 {
		return nil, false, domain.ErrUnauthenticated
	}
	if peer <= 0 {
		return nil, false, domain.ErrInvalidUserID
	}
	if requester == peer {
		return nil, false, domain.ErrSelfDirect
	}

	room, err := s.rooms.FindDirect(ctx, requester, peer)
	switch {
	case err == nil:
		return room, false, nil
	case !errors.Is(err, domain.ErrRoomNotFound):
		return nil, false, err
	}

	now := s.now().UTC()
	room, err = domain.NewRoom(domain.RoomDM, "", "", requester, now)
	if err != nil {
		return nil, false, err
	}
	members := []domain.Membership{
		{UserID: requester, Role: domain.RoleAdmin, JoinedAt: now},
		{UserID: peer, Role: domain.RoleMember, JoinedAt: now},
	}
	if err := s.rooms.Create(ctx, room, members); err != nil {
		// параллельный запрос уже создал эту пару
		if errors.Is(err, domain.ErrConflict) {
			room, err := s.rooms.FindDirect(ctx, requester, peer)
			if err != nil {
				return nil, false, err
			}
			return room, false, nil
		}
		return nil, false, fmt.Errorf("rooms.Create: %w", err)
	}
	return room, true, nil
}

// AddMember добавляет участника. Только ADMIN, не в DM и не в неактивную комнату.
func (s *MembershipService) AddMember(ctx context.Context, roomID domain.RoomID, requester, target domain.UserID) (*domain.Membership, error) {
	if target <= 0 {
		return nil, domain.ErrInvalidUserID
	}
	if _, err := s.mutableRoom(ctx, roomID, requester); err != nil {
		return nil, err
	}

	m := domain.Membership{RoomID: roomID, UserID: target, Role: domain.RoleMember, JoinedAt: s.now().UTC()}
	if err := s.members.AddMember(ctx, m); err != nil {
		return nil, err
	}

	s.postSystem(ctx, roomID, fmt.Sprintf("user %s was added by user %s", target, requester))
	return &m, nil
}

// RemoveMember исключает участника: сначала снимается членство, затем системное
// сообщение в комнату и уведомление member.kicked в личный топик исключённого.
// Уже открытые подписки исключённого не рвутся, он блокируется на следующем действии.
func (s *MembershipService) RemoveMember(ctx context.Context, roomID domain.RoomID, requester, target domain.UserID) error {
	room, err := s.mutableRoom(ctx, roomID, requester)
	if err != nil {
		return err
	}
	if target == room.CreatedBy {
		return domain.ErrCannotRemoveCreator
	}

	if err := s.members.RemoveMember(ctx, roomID, target); err != nil {
		return err
	}

	s.postSystem(ctx, roomID, fmt.Sprintf("user %s was removed by user %s", target, requester))
	s.pub.Publish(topic.UserKicked(target), domain.Event{
		Type: domain.EventMemberKicked,
		Data: domain.MemberKickedData{RoomID: roomID, By: requester},
	})
	return nil
}

// DeactivateRoom доступна только создателю. Повторный вызов — успех без рассылки.
func (s *MembershipService) DeactivateRoom(ctx context.Context, roomID domain.RoomID, requester domain.UserID) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatedBy != requester {
		return domain.ErrNotRoomCreator
	}
	if !room.Active {
		return nil
	}
	if err := s.rooms.Deactivate(ctx, roomID); err != nil {
		return err
	}

	s.pub.Publish(topic.Room(roomID), domain.Event{
		Type: domain.EventRoomDeactivated,
		Data: domain.RoomDeactivatedData{RoomID: roomID},
	})
	return nil
}

func (s *MembershipService) ListMembers(ctx context.Context, roomID domain.RoomID, requester domain.UserID) ([]domain.Membership, error) {
	if err := s.guard.Authorize(ctx, requester, ActionSubscribe, roomID); err != nil {
		return nil, err
	}
	return s.members.ListMembers(ctx, roomID)
}

// mutableRoom — комната, состав которой requester вправе менять.
func (s *MembershipService) mutableRoom(ctx context.Context, roomID domain.RoomID, requester domain.UserID) (*domain.Room, error) {
	if requester <= 0 {
		return nil, domain.ErrUnauthenticated
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, domain.ErrRoomInactive
	}
	if room.IsDirect() {
		return nil, domain.ErrDirectRoomFixed
	}
	admin, err := s.members.HasRole(ctx, roomID, requester, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, domain.ErrNotAdmin
	}
	return room, nil
}

// Запись состава — граница успеха; сбой системного сообщения только логируем.
func (s *MembershipService) postSystem(ctx context.Context, roomID domain.RoomID, content string) {
	if _, err := s.system.PostSystem(ctx, roomID, content); err != nil {
		slog.Warn("service.MembershipService.postSystem:",
			slog.Int64("room_id", int64(roomID)),
			slog.Any("err", err),
		)
	}
}
