package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/go-playground/validator/v10"
)

type Command string

// Команды клиента
const (
	CmdConnect     Command = "CONNECT"
	CmdSubscribe   Command = "SUBSCRIBE"
	CmdUnsubscribe Command = "UNSUBSCRIBE"
	CmdSend        Command = "SEND"
	CmdDisconnect  Command = "DISCONNECT"
)

// Команды сервера
const (
	CmdConnected Command = "CONNECTED"
	CmdMessage   Command = "MESSAGE"
	CmdReceipt   Command = "RECEIPT"
	CmdError     Command = "ERROR"
)

// ClientFrame — входящий фрейм. Payload разбирается по destination.
type ClientFrame struct {
	Command     Command           `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Receipt     string            `json:"receipt,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
}

// Header — регистронезависимый поиск заголовка.
func (f *ClientFrame) Header(name string) string {
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

type ServerFrame struct {
	Command     Command       `json:"command"`
	Destination string        `json:"destination,omitempty"`
	Receipt     string        `json:"receipt,omitempty"`
	Session     string        `json:"session,omitempty"`
	UserID      domain.UserID `json:"user_id,omitempty"`
	Code        string        `json:"code,omitempty"`
	Message     string        `json:"message,omitempty"`
	Payload     *domain.Event `json:"payload,omitempty"`
}

type SendPayload struct {
	Content string             `json:"content"`
	Type    domain.MessageType `json:"type" validate:"omitempty,oneof=TEXT IMAGE FILE"`
}

type EditPayload struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
	Content   string `json:"content"`
}

type DeletePayload struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodePayload разбирает и проверяет payload. Любая ошибка — ErrValidation.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", domain.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// Коды ошибок в ERROR-фреймах
const (
	CodeAuthentication = "authentication"
	CodeAuthorization  = "authorization"
	CodeValidation     = "validation"
	CodeNotFound       = "not_found"
	CodeForbidden      = "forbidden"
	CodeConflict       = "conflict"
	CodeInternal       = "internal"
)

func codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, domain.ErrAuthorization):
		return CodeAuthorization
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// errorFrame не раскрывает детали внутренних ошибок клиенту.
func errorFrame(receipt string, err error) ServerFrame {
	code := codeFor(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return ServerFrame{Command: CmdError, Code: code, Message: msg, Receipt: receipt}
}
