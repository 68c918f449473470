// Package store provides the moderation outcome journal.
package store

import (
	"context"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
)

// Repository defines the interface for persisting moderation events.
type Repository interface {
	// RecordEvent appends one event. Recording the same event id twice is a no-op.
	RecordEvent(ctx context.Context, e domain.Event) error

	// Totals returns the number of recorded events per type.
	Totals(ctx context.Context) (map[domain.EventType]int64, error)

	// Recent returns up to limit events for chatID, newest first.
	Recent(ctx context.Context, chatID int64, limit int) ([]domain.Event, error)

	// PruneBefore removes events recorded before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
