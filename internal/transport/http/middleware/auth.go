package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/pkg/httputil"
	"github.com/cwrk-planet/chat-service/pkg/logger"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

type Verifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

// Auth требует Bearer access token и кладёт проверенный user id в контекст.
func Auth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := security.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "authentication", "missing bearer token")
				return
			}
			uid, err := v.Verify(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).Info("httpmw.Auth: rejected", slog.Any("err", err))
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "authentication", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
			ctx = logger.With(ctx, slog.String("user_id", uid.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserIDFromCtx(ctx context.Context) domain.UserID {
	if id, ok := ctx.Value(ctxKeyUserID).(domain.UserID); ok {
		return id
	}
	return 0
}
