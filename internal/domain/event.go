package domain

type EventType string

const (
	EventMessageCreated  EventType = "message.created"
	EventMessageEdited   EventType = "message.edited"
	EventMessageDeleted  EventType = "message.deleted"
	EventMemberKicked    EventType = "member.kicked"
	EventRoomDeactivated EventType = "room.deactivated"
	EventRoomState       EventType = "room.state"
	EventUserRelay       EventType = "user.relay"
)

// Event — то, что рассылается подписчикам топика.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type MessageDeletedData struct {
	ID     string `json:"id"`
	RoomID RoomID `json:"room_id"`
}

type MemberKickedData struct {
	RoomID RoomID `json:"room_id"`
	By     UserID `json:"by"`
}

type RoomDeactivatedData struct {
	RoomID RoomID `json:"room_id"`
}

type RoomStateMember struct {
	UserID UserID `json:"user_id"`
	Role   Role   `json:"role"`
	Online bool   `json:"online"`
}

type RoomStateData struct {
	RoomID  RoomID            `json:"room_id"`
	Members []RoomStateMember `json:"members"`
}
