// Package middleware provides HTTP middleware for the bot's endpoints.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// SecretToken rejects requests whose secret header does not match secret.
// An empty secret disables the check.
func SecretToken(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		want := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(SecretTokenHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				if logger != nil {
					logger.Warn("Webhook request with invalid secret token", "ip", r.RemoteAddr)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
