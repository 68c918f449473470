package events

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	writeTimeout = 5 * time.Second
	backlogSize  = 20
)

// Backlog returns recent events recorded for a chat, newest first.
type Backlog interface {
	Recent(ctx context.Context, chatID int64, limit int) ([]domain.Event, error)
}

// WebSocketHandler streams hub events to a WebSocket client.
type WebSocketHandler struct {
	hub     *Hub
	token   string
	backlog Backlog
	logger  *slog.Logger
}

// NewWebSocketHandler creates a handler. An empty token disables the endpoint.
func NewWebSocketHandler(hub *Hub, token string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, token: token, logger: logger}
}

// SetBacklog replays recent journal events to clients that filter by chat.
func (h *WebSocketHandler) SetBacklog(b Backlog) {
	h.backlog = b
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
// Clients may pass chat_id to receive events from a single chat.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}
	if !h.authorized(r) {
		h.logger.Warn("Event stream rejected", "ip", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var chatFilter int64
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid chat_id", http.StatusBadRequest)
			return
		}
		chatFilter = id
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	observerID := uuid.NewString()
	stream, unsubscribe := h.hub.Subscribe(observerID)
	defer unsubscribe()

	// Observers never send; CloseRead handles control frames and cancels on disconnect.
	ctx := ws.CloseRead(r.Context())
	h.logger.Info("Event stream opened", "observer_id", observerID, "chat_id", chatFilter, "ip", r.RemoteAddr)

	if chatFilter != 0 && h.backlog != nil {
		if err := h.replay(ctx, ws, chatFilter); err != nil {
			h.logger.Debug("Event backlog replay failed", "observer_id", observerID, "error", err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Event stream closed", "observer_id", observerID)
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			if chatFilter != 0 && e.ChatID != chatFilter {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, ws, e)
			cancel()
			if err != nil {
				h.logger.Debug("Event stream write failed", "observer_id", observerID, "error", err)
				return
			}
		}
	}
}

// replay sends the chat's recent events oldest first.
func (h *WebSocketHandler) replay(ctx context.Context, ws *websocket.Conn, chatID int64) error {
	recent, err := h.backlog.Recent(ctx, chatID, backlogSize)
	if err != nil {
		h.logger.Warn("Failed to load event backlog", "chat_id", chatID, "error", err)
		return nil
	}
	for i := len(recent) - 1; i >= 0; i-- {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, ws, recent[i])
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *WebSocketHandler) authorized(r *http.Request) bool {
	got := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}
