package domain

import (
	"strings"
	"time"
)

type RoomID int64

type RoomKind string

const (
	RoomDM      RoomKind = "DM"
	RoomGroup   RoomKind = "GROUP"
	RoomChannel RoomKind = "CHANNEL"
)

func ParseRoomKind(s string) (RoomKind, error) {
	switch k := RoomKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case RoomDM, RoomGroup, RoomChannel:
		return k, nil
	default:
		return "", ErrInvalidRoomKind
	}
}

type Room struct {
	ID          RoomID    `db:"id" json:"id"`
	Kind        RoomKind  `db:"kind" json:"kind"`
	Name        *string   `db:"name" json:"name"` // nil для DM
	Description *string   `db:"description" json:"description"`
	CreatedBy   UserID    `db:"created_by" json:"created_by"`
	Active      bool      `db:"is_active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NewRoom проверяет инварианты имени: GROUP/CHANNEL требуют имя, у DM его нет.
func NewRoom(kind RoomKind, name, description string, createdBy UserID, now time.Time) (*Room, error) {
	r := &Room{
		Kind:      kind,
		CreatedBy: createdBy,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	name = strings.TrimSpace(name)
	switch kind {
	case RoomDM:
		// имя у DM не хранится
	case RoomGroup, RoomChannel:
		if name == "" {
			return nil, ErrRoomNameRequired
		}
		r.Name = &name
	default:
		return nil, ErrInvalidRoomKind
	}
	if d := strings.TrimSpace(description); d != "" {
		r.Description = &d
	}
	return r, nil
}

func (r *Room) IsDirect() bool { return r.Kind == RoomDM }
