// Package topic разбирает строки destination из фреймов шлюза в типизированный маршрут.
//
// Поддерживаемые формы:
//
//	room/{id}            подписка на комнату / отправка сообщения
//	room/{id}/edit       отправка правки
//	room/{id}/delete     отправка удаления
//	user/{id}[/...]      пользовательские уведомления
//	system/{name}        служебные команды (ping)
//
// Ведущий "/" и префиксы "/topic/", "/app/" допускаются и отбрасываются.
package topic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

var ErrInvalidDestination = fmt.Errorf("%w: invalid destination", domain.ErrValidation)

type Kind int

const (
	KindRoom Kind = iota + 1
	KindUser
	KindSystem
)

// Op — операция над комнатой, закодированная суффиксом destination.
type Op string

const (
	OpPost   Op = ""
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// Route — результат разбора destination.
type Route struct {
	Kind   Kind
	RoomID domain.RoomID // KindRoom
	Op     Op            // KindRoom
	UserID domain.UserID // KindUser
	Rest   string        // KindUser: хвост после id; KindSystem: имя команды
}

// Parse разбирает destination. Для пользовательских топиков хвост произвольный.
func Parse(dest string) (Route, error) {
	s := strings.TrimSpace(dest)
	s = strings.TrimPrefix(s, "/")
	for _, p := range []string{"topic/", "app/"} {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return Route{}, ErrInvalidDestination
	}

	parts := strings.Split(s, "/")
	switch parts[0] {
	case "room", "chat":
		return parseRoom(parts[1:])
	case "user":
		return parseUser(parts[1:])
	case "system":
		if len(parts) != 2 || parts[1] == "" {
			return Route{}, ErrInvalidDestination
		}
		return Route{Kind: KindSystem, Rest: parts[1]}, nil
	default:
		return Route{}, ErrInvalidDestination
	}
}

func parseRoom(parts []string) (Route, error) {
	if len(parts) == 0 || len(parts) > 2 {
		return Route{}, ErrInvalidDestination
	}
	id, err := parseID(parts[0])
	if err != nil {
		return Route{}, err
	}
	r := Route{Kind: KindRoom, RoomID: domain.RoomID(id)}
	if len(parts) == 2 {
		switch op := Op(parts[1]); op {
		case OpEdit, OpDelete:
			r.Op = op
		default:
			return Route{}, ErrInvalidDestination
		}
	}
	return r, nil
}

func parseUser(parts []string) (Route, error) {
	if len(parts) == 0 {
		return Route{}, ErrInvalidDestination
	}
	id, err := parseID(parts[0])
	if err != nil {
		return Route{}, err
	}
	return Route{Kind: KindUser, UserID: domain.UserID(id), Rest: strings.Join(parts[1:], "/")}, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Join(ErrInvalidDestination, fmt.Errorf("bad id %q", s))
	}
	return id, nil
}

// Key — ключ подписки в реестре рассылки. Правки и удаления комнаты
// доставляются подписчикам базового топика комнаты.
func (r Route) Key() string {
	switch r.Kind {
	case KindRoom:
		return Room(r.RoomID)
	case KindUser:
		return User(r.UserID)
	case KindSystem:
		return "system/" + r.Rest
	}
	return ""
}

// Destination — каноническое имя топика с учётом операции.
func (r Route) Destination() string {
	switch r.Kind {
	case KindRoom:
		return RoomOp(r.RoomID, r.Op)
	case KindUser:
		if r.Rest == "" {
			return User(r.UserID)
		}
		return User(r.UserID) + "/" + r.Rest
	}
	return r.Key()
}

func Room(id domain.RoomID) string {
	return "room/" + strconv.FormatInt(int64(id), 10)
}

func RoomOp(id domain.RoomID, op Op) string {
	if op == OpPost {
		return Room(id)
	}
	return Room(id) + "/" + string(op)
}

func User(id domain.UserID) string {
	return "user/" + strconv.FormatInt(int64(id), 10)
}

func UserKicked(id domain.UserID) string {
	return User(id) + "/kicked"
}

// KeyOf возвращает ключ подписки для произвольного destination
// (room/7/edit -> room/7, user/3/kicked -> user/3).
func KeyOf(dest string) (string, error) {
	r, err := Parse(dest)
	if err != nil {
		return "", err
	}
	return r.Key(), nil
}
