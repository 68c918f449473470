package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/gatekeeper/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects the handlers mounted on the public router.
// Nil handlers are not mounted.
type RouterConfig struct {
	WebhookPath   string
	WebhookSecret string
	Webhook       http.Handler
	Events        http.Handler
	Health        *HealthHandler
	Logger        *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Bot is running!"))
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
	}

	if cfg.Webhook != nil {
		r.With(middleware.SecretToken(cfg.WebhookSecret, cfg.Logger)).
			Post(cfg.WebhookPath, cfg.Webhook.ServeHTTP)
	}

	if cfg.Events != nil {
		r.Get("/ws/events", cfg.Events.ServeHTTP)
	}

	return r
}
