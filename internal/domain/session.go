// Package domain holds the core types shared by the verification engine,
// the message ledger and the transport adapters.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Key identifies a participant within one chat.
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.ChatID, k.UserID)
}

// Profile is a snapshot of the participant's display data taken at join time.
type Profile struct {
	FirstName string
	Username  string
}

// DisplayName returns the handle used in the challenge prompt.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.FirstName); name != "" {
		return name
	}
	return "new member"
}

// ShortName returns the name used in outcome notices.
func (p Profile) ShortName() string {
	if name := strings.TrimSpace(p.FirstName); name != "" {
		return name
	}
	return p.DisplayName()
}

// Session holds the state of one pending verification.
type Session struct {
	Key             Key
	ChallengeID     string
	PromptMessageID int
	CorrectOption   int
	Deadline        time.Time
	Profile         Profile
	CreatedAt       time.Time

	cancel context.CancelFunc
}

// Bind attaches the cancel function of the session's timer scope.
func (s *Session) Bind(cancel context.CancelFunc) {
	s.cancel = cancel
}

// Stop cancels the session's timers. Safe to call on unbound sessions.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Remaining returns the time left until the deadline, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	left := s.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the session is eligible for timeout resolution.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Deadline)
}
