package verification

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/ashureev/gatekeeper/internal/gateway"
)

// goBackground runs fn on a tracked goroutine unless the engine is closed.
func (e *Engine) goBackground(fn func()) {
	e.bgMu.Lock()
	if e.closed {
		e.bgMu.Unlock()
		return
	}
	e.wg.Add(1)
	e.bgMu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Background task panicked", "panic", r)
			}
		}()
		fn()
	}()
}

// startTimers launches the timeout and countdown units of one session.
// Both stop when ctx is cancelled, which happens as soon as the session is taken.
func (e *Engine) startTimers(ctx context.Context, key domain.Key, challengeID string, deadline time.Time) {
	e.goBackground(func() { e.runTimeout(ctx, key, challengeID, deadline) })
	if e.cfg.RefreshInterval > 0 {
		e.goBackground(func() { e.runCountdown(ctx, key, challengeID) })
	}
}

func (e *Engine) runTimeout(ctx context.Context, key domain.Key, challengeID string, deadline time.Time) {
	timer := time.NewTimer(max(deadline.Sub(e.now()), 0))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	e.expire(e.ctx, key, challengeID)
}

// expire rejects the session if it is still pending and past its deadline.
func (e *Engine) expire(ctx context.Context, key domain.Key, challengeID string) bool {
	sess, ok := e.store.Get(key)
	if !ok || sess.ChallengeID != challengeID {
		return false
	}
	if !sess.Expired(e.now()) {
		return false
	}
	return e.reject(ctx, key, challengeID, domain.ReasonTimeout) == Resolved
}

func (e *Engine) runCountdown(ctx context.Context, key domain.Key, challengeID string) {
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !e.refreshCountdown(ctx, key, challengeID) {
			return
		}
	}
}

// refreshCountdown rewrites the countdown label once and reports whether
// the refresher should keep running.
func (e *Engine) refreshCountdown(ctx context.Context, key domain.Key, challengeID string) bool {
	sess, ok := e.store.Get(key)
	if !ok || sess.ChallengeID != challengeID {
		return false
	}
	remaining := sess.Remaining(e.now())
	if remaining <= 0 {
		return false
	}

	err := e.gw.EditControls(ctx, key.ChatID, sess.PromptMessageID, controls(key.UserID, remaining))
	switch {
	case err == nil, errors.Is(err, gateway.ErrNotModified):
		return true
	case ctx.Err() != nil:
		return false
	default:
		e.logger.Warn("Countdown refresh stopped",
			"chat_id", key.ChatID,
			"user_id", key.UserID,
			"message_id", sess.PromptMessageID,
			"error", err)
		return false
	}
}
