package fastout

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/ashureev/gatekeeper/internal/gateway"
)

// GateChecker reports whether a participant is still awaiting verification.
type GateChecker interface {
	IsGated(key domain.Key) bool
}

// Tracker records group messages of recently joined participants and purges
// them when their author leaves. A participant is tracked for window after
// joining and again for window after being admitted.
type Tracker struct {
	gw     gateway.Gateway
	ledger *Ledger
	gate   GateChecker
	mech   *domain.Mechanisms
	window time.Duration
	logger *slog.Logger
	events domain.Publisher
	now    func() time.Time
}

// NewTracker wires a tracker. A nil events publisher discards events.
func NewTracker(gw gateway.Gateway, ledger *Ledger, gate GateChecker, mech *domain.Mechanisms, window time.Duration, logger *slog.Logger, events domain.Publisher) *Tracker {
	if events == nil {
		events = domain.NopPublisher
	}
	return &Tracker{
		gw:     gw,
		ledger: ledger,
		gate:   gate,
		mech:   mech,
		window: window,
		logger: logger,
		events: events,
		now:    time.Now,
	}
}

// SetGate sets the checker for gated participants.
// Must be called before the tracker handles messages.
func (t *Tracker) SetGate(gate GateChecker) {
	t.gate = gate
}

// OnJoin opens the participant's tracking window.
func (t *Tracker) OnJoin(key domain.Key) {
	t.ledger.Open(key, t.now())
}

// Publish reopens the tracking window of admitted participants.
func (t *Tracker) Publish(e domain.Event) {
	if e.Type != domain.EventSessionAdmitted {
		return
	}
	t.ledger.Open(domain.Key{ChatID: e.ChatID, UserID: e.UserID}, e.At)
}

// Tracked returns the number of participants with recorded messages.
func (t *Tracker) Tracked() int {
	return t.ledger.Len()
}

// OnMessage handles a message posted in a monitored chat.
// Messages from gated participants are deleted whether or not tracking is on.
func (t *Tracker) OnMessage(ctx context.Context, key domain.Key, messageID int) {
	if t.gate != nil && t.gate.IsGated(key) {
		if err := t.gw.DeleteMessage(ctx, key.ChatID, messageID); err != nil {
			t.logger.Warn("Failed to delete message from gated participant",
				"chat_id", key.ChatID, "user_id", key.UserID, "message_id", messageID, "error", err)
			return
		}
		t.logger.Info("Deleted message from gated participant",
			"chat_id", key.ChatID, "user_id", key.UserID, "message_id", messageID)
		return
	}
	if !t.mech.FastOut() {
		return
	}
	now := t.now()
	if !t.ledger.Tracking(key, now, t.window) {
		return
	}
	t.ledger.Append(key, messageID, now)
	t.logger.Debug("Message tracked", "chat_id", key.ChatID, "user_id", key.UserID, "message_id", messageID)
}

// OnLeave purges every tracked message of a departing participant.
// Individual deletion failures are logged and do not stop the purge.
func (t *Tracker) OnLeave(ctx context.Context, key domain.Key) int {
	if !t.mech.FastOut() {
		return 0
	}
	entries, ok := t.ledger.Take(key)
	if !ok {
		return 0
	}

	deleted := 0
	for _, e := range entries {
		if err := t.gw.DeleteMessage(ctx, key.ChatID, e.MessageID); err != nil {
			t.logger.Warn("Failed to delete tracked message",
				"chat_id", key.ChatID, "user_id", key.UserID, "message_id", e.MessageID, "error", err)
			continue
		}
		deleted++
	}

	ev := domain.NewEvent(domain.EventLedgerPurged, key, t.now())
	ev.Messages = deleted
	t.events.Publish(ev)
	t.logger.Info("Purged messages of departed participant",
		"chat_id", key.ChatID, "user_id", key.UserID, "deleted", deleted, "tracked", len(entries))
	return deleted
}
