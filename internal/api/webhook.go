package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxUpdateBytes = 1 << 20

// UpdateQueue accepts decoded updates for asynchronous handling.
type UpdateQueue interface {
	Enqueue(u tgbotapi.Update) bool
}

// WebhookHandler decodes platform updates and hands them to the queue.
type WebhookHandler struct {
	queue  UpdateQueue
	logger *slog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(queue UpdateQueue, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{queue: queue, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var upd tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		h.logger.Warn("Rejected malformed update", "error", err, "ip", r.RemoteAddr)
		Status(w, http.StatusBadRequest, "error")
		return
	}

	if !h.queue.Enqueue(upd) {
		// Telegram retries non-2xx deliveries.
		Status(w, http.StatusServiceUnavailable, "busy")
		return
	}
	Status(w, http.StatusOK, "ok")
}
