package security

import (
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// BearerToken достаёт токен из значения заголовка Authorization.
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	h := strings.TrimSpace(header)
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", domain.ErrMissingCredential
	}
	tok := strings.TrimSpace(h[len(prefix):])
	if tok == "" {
		return "", domain.ErrMissingCredential
	}
	return tok, nil
}
