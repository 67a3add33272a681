// Package presence отслеживает, какие пользователи сейчас подключены к шлюзу.
package presence

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type Tracker interface {
	Touch(ctx context.Context, user domain.UserID, session string) error
	Leave(ctx context.Context, user domain.UserID, session string) error
	Online(ctx context.Context, users []domain.UserID) (map[domain.UserID]bool, error)
}

// Nop — трекер для запуска без Redis: никто не онлайн.
type Nop struct{}

func (Nop) Touch(context.Context, domain.UserID, string) error { return nil }
func (Nop) Leave(context.Context, domain.UserID, string) error { return nil }
func (Nop) Online(_ context.Context, users []domain.UserID) (map[domain.UserID]bool, error) {
	return make(map[domain.UserID]bool, len(users)), nil
}
