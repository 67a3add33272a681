package domain

import "time"

type Role string

const (
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

type Membership struct {
	RoomID   RoomID    `db:"room_id" json:"room_id"`
	UserID   UserID    `db:"user_id" json:"user_id"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}
