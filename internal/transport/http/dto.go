package http

import "github.com/cwrk-planet/chat-service/internal/domain"

type CreateRoomRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=GROUP CHANNEL group channel"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1000"`
}

type DirectRoomRequest struct {
	PeerID domain.UserID `json:"peer_id" validate:"required,gt=0"`
}

type AddMemberRequest struct {
	UserID domain.UserID `json:"user_id" validate:"required,gt=0"`
}

type DirectRoomResponse struct {
	Room    *domain.Room `json:"room"`
	Created bool         `json:"created"`
}

type MembersResponse struct {
	Items []domain.Membership `json:"items"`
}
