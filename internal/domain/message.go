package domain

import "time"

type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageImage  MessageType = "IMAGE"
	MessageFile   MessageType = "FILE"
	MessageSystem MessageType = "SYSTEM"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message — документ в хранилище сообщений. Не удаляется физически.
type Message struct {
	ID        string      `json:"id" cbor:"id"`
	RoomID    RoomID      `json:"room_id" cbor:"room_id"`
	SenderID  UserID      `json:"sender_id" cbor:"sender_id"`
	Content   string      `json:"content" cbor:"content"`
	Type      MessageType `json:"type" cbor:"type"`
	Edited    bool        `json:"edited" cbor:"edited"`
	EditedAt  *time.Time  `json:"edited_at,omitempty" cbor:"edited_at,omitempty"`
	Deleted   bool        `json:"deleted" cbor:"deleted"`
	CreatedAt time.Time   `json:"created_at" cbor:"created_at"`
}

func (m *Message) IsSystem() bool { return m.Type == MessageSystem }

// Page — страница истории, новые сообщения первыми.
type Page struct {
	Items         []Message `json:"items"`
	Page          int       `json:"page"`
	Size          int       `json:"size"`
	TotalElements int       `json:"total_elements"`
	TotalPages    int       `json:"total_pages"`
}
