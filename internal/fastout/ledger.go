// Package fastout tracks messages posted by participants so that they can be
// purged when the participant leaves the chat.
package fastout

import (
	"sync"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
)

// Entry is one tracked message.
type Entry struct {
	MessageID int
	At        time.Time
}

// Ledger maps a participant in a chat to the messages they posted, oldest first.
// It also remembers when each participant's tracking window opened.
type Ledger struct {
	mu      sync.Mutex
	entries map[domain.Key][]Entry
	windows map[domain.Key]time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[domain.Key][]Entry),
		windows: make(map[domain.Key]time.Time),
	}
}

// Open starts or restarts the participant's tracking window at at.
// A window never moves backwards.
func (l *Ledger) Open(key domain.Key, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if start, ok := l.windows[key]; ok && start.After(at) {
		return
	}
	l.windows[key] = at
}

// Tracking reports whether now falls inside the participant's window.
func (l *Ledger) Tracking(key domain.Key, now time.Time, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	start, ok := l.windows[key]
	return ok && now.Before(start.Add(window))
}

// Append records a message, creating the participant's entry if needed.
func (l *Ledger) Append(key domain.Key, messageID int, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = append(l.entries[key], Entry{MessageID: messageID, At: at})
}

// Take removes the participant's entry and window and returns its messages.
func (l *Ledger) Take(key domain.Key) ([]Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
	entries, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	delete(l.entries, key)
	return entries, true
}

// Messages returns a snapshot of the participant's tracked message ids.
func (l *Ledger) Messages(key domain.Key) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.entries[key]
	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.MessageID
	}
	return ids
}

// Len returns the number of tracked participants.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// PruneBefore forgets messages recorded before cutoff, windows opened before
// cutoff, and empty entries. It returns the number of forgotten messages.
func (l *Ledger) PruneBefore(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, start := range l.windows {
		if start.Before(cutoff) {
			delete(l.windows, key)
		}
	}

	pruned := 0
	for key, entries := range l.entries {
		keep := 0
		for keep < len(entries) && entries[keep].At.Before(cutoff) {
			keep++
		}
		if keep == 0 {
			continue
		}
		pruned += keep
		if keep == len(entries) {
			delete(l.entries, key)
			continue
		}
		l.entries[key] = append([]Entry(nil), entries[keep:]...)
	}
	return pruned
}
