package service

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type Action string

const (
	ActionSubscribe Action = "SUBSCRIBE"
	ActionPublish   Action = "PUBLISH"
)

// Authorizer проверяет членство в комнате на каждое действие. Ничего не кэширует:
// удалённый участник блокируется на первом же следующем действии.
type Authorizer struct {
	members MembershipStore
}

func NewAuthorizer(members MembershipStore) *Authorizer {
	return &Authorizer{members: members}
}

func (a *Authorizer) Authorize(ctx context.Context, identity domain.UserID, _ Action, roomID domain.RoomID) error {
	if identity <= 0 {
		return domain.ErrUnauthenticated
	}
	ok, err := a.members.IsMember(ctx, roomID, identity)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}
