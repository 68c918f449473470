package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a moderation event.
type EventType string

const (
	EventSessionCreated  EventType = "session.created"
	EventSessionAdmitted EventType = "session.admitted"
	EventSessionRejected EventType = "session.rejected"
	EventLedgerPurged    EventType = "ledger.purged"
)

// Rejection reasons shown in removal notices.
const (
	ReasonIncorrectAnswer = "incorrect answer"
	ReasonRejectedByAdmin = "rejected by administrator"
	ReasonTimeout         = "verification window exceeded"
	ReasonLeft            = "left during verification"
)

// Event is a moderation fact published to observers.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	ChatID   int64     `json:"chat_id"`
	UserID   int64     `json:"user_id"`
	Name     string    `json:"name,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Messages int       `json:"messages,omitempty"`
	At       time.Time `json:"at"`
}

// NewEvent stamps an event with a fresh id and time.
func NewEvent(t EventType, key Key, at time.Time) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		ChatID: key.ChatID,
		UserID: key.UserID,
		At:     at.UTC(),
	}
}

// Publisher receives moderation events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Publishers fans an event out to several publishers.
type Publishers []Publisher

// Publish implements Publisher.
func (ps Publishers) Publish(e Event) {
	for _, p := range ps {
		if p != nil {
			p.Publish(e)
		}
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// NopPublisher discards every event.
var NopPublisher Publisher = noopPublisher{}
