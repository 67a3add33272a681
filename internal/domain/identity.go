package domain

import "strconv"

// UserID — идентификатор пользователя из auth-service (sub в access token).
type UserID int64

// SystemUserID — отправитель системных сообщений.
const SystemUserID UserID = 0

func (id UserID) String() string {
	if id == SystemUserID {
		return "SYSTEM"
	}
	return strconv.FormatInt(int64(id), 10)
}

func ParseUserID(s string) (UserID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID
	}
	return UserID(id), nil
}
