package httputil

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cwrk-planet/chat-service/pkg/logger"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Error("httputil.JSON: write response", "err", err)
	}
}

// OK — «успешный» ответ с обёрткой.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, envelope{"data": data})
}

// Error — унифицированная ошибка (message + code).
func Error(ctx context.Context, w http.ResponseWriter, status int, code, msg string) {
	e := envelope{"message": msg, "code": code}
	if id, ok := FromContext(ctx); ok {
		e["request_id"] = id
	}
	JSON(w, status, envelope{"error": e})
}
