package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter собирает HTTP API. /ws проверяет личность сам, кадром CONNECT.
func NewRouter(h *Handler, verifier httpmw.Verifier, wsHandler http.HandlerFunc, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareTracing)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/ws", wsHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmw.Auth(verifier))
		api.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		api.Get("/messages/{roomId}", h.History)

		api.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Post("/direct", h.DirectRoom)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/members", h.ListMembers)
				rr.Post("/members", h.AddMember)
				rr.Delete("/members/{userId}", h.RemoveMember)
				rr.Post("/deactivate", h.DeactivateRoom)
			})
		})
	})

	return r
}
