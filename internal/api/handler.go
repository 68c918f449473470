// Package api provides the HTTP surface of the bot: webhook intake, health and
// the moderator event stream.
package api

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Status writes the {"status": ...} body Telegram-facing endpoints use.
func Status(w http.ResponseWriter, code int, status string) {
	JSON(w, code, map[string]string{"status": status})
}
