// Package gatewaytest provides an in-memory Gateway that records every call.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/ashureev/gatekeeper/internal/gateway"
)

// Method names recorded in Call.Method.
const (
	MethodRestrict    = "Restrict"
	MethodPublish     = "PublishChallenge"
	MethodEdit        = "EditControls"
	MethodDelete      = "DeleteMessage"
	MethodBan         = "Ban"
	MethodUnban       = "Unban"
	MethodNotice      = "SendNotice"
	MethodReply       = "Reply"
	MethodAnswerPress = "AnswerPress"
	MethodRole        = "Role"
)

// Call is one recorded gateway invocation.
type Call struct {
	Method      string
	ChatID      int64
	UserID      int64
	MessageID   int
	Text        string
	Alert       bool
	Permissions gateway.Permissions
	Controls    gateway.Controls
	Challenge   domain.Challenge
}

// Fake is a Gateway double. Zero value is not usable; use New.
type Fake struct {
	mu        sync.Mutex
	calls     []Call
	nextMsg   int
	nextPoll  int
	roles     map[int64]gateway.Role
	failures  map[string]error
	deleteErr map[int]error
	editErr   func(n int) error
	edits     int
}

// New returns an empty fake. Message ids start at 1000.
func New() *Fake {
	return &Fake{
		nextMsg:   1000,
		roles:     make(map[int64]gateway.Role),
		failures:  make(map[string]error),
		deleteErr: make(map[int]error),
	}
}

// SetRole fixes the role returned for userID.
func (f *Fake) SetRole(userID int64, role gateway.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = role
}

// Fail makes every call of method return err.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// FailDelete makes deletion of messageID return err.
func (f *Fake) FailDelete(messageID int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr[messageID] = err
}

// OnEdit sets the result of the n-th EditControls call (1-based).
func (f *Fake) OnEdit(fn func(n int) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editErr = fn
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns the recorded calls of one method.
func (f *Fake) CallsOf(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	return len(f.CallsOf(method))
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.failures[c.Method]
}

// Restrict implements gateway.Gateway.
func (f *Fake) Restrict(_ context.Context, chatID, userID int64, perms gateway.Permissions) error {
	return f.record(Call{Method: MethodRestrict, ChatID: chatID, UserID: userID, Permissions: perms})
}

// PublishChallenge implements gateway.Gateway.
func (f *Fake) PublishChallenge(_ context.Context, chatID int64, c domain.Challenge, controls gateway.Controls) (gateway.Published, error) {
	if err := f.record(Call{Method: MethodPublish, ChatID: chatID, Challenge: c, Controls: controls}); err != nil {
		return gateway.Published{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	f.nextPoll++
	return gateway.Published{MessageID: f.nextMsg, ChallengeID: fmt.Sprintf("poll-%d", f.nextPoll)}, nil
}

// EditControls implements gateway.Gateway.
func (f *Fake) EditControls(_ context.Context, chatID int64, messageID int, controls gateway.Controls) error {
	if err := f.record(Call{Method: MethodEdit, ChatID: chatID, MessageID: messageID, Controls: controls}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	if f.editErr != nil {
		return f.editErr(f.edits)
	}
	return nil
}

// DeleteMessage implements gateway.Gateway.
func (f *Fake) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if err := f.record(Call{Method: MethodDelete, ChatID: chatID, MessageID: messageID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr[messageID]
}

// Ban implements gateway.Gateway.
func (f *Fake) Ban(_ context.Context, chatID, userID int64) error {
	return f.record(Call{Method: MethodBan, ChatID: chatID, UserID: userID})
}

// Unban implements gateway.Gateway.
func (f *Fake) Unban(_ context.Context, chatID, userID int64) error {
	return f.record(Call{Method: MethodUnban, ChatID: chatID, UserID: userID})
}

// SendNotice implements gateway.Gateway.
func (f *Fake) SendNotice(_ context.Context, chatID int64, text string, silent bool) (int, error) {
	if err := f.record(Call{Method: MethodNotice, ChatID: chatID, Text: text, Alert: !silent}); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	return f.nextMsg, nil
}

// Reply implements gateway.Gateway.
func (f *Fake) Reply(_ context.Context, chatID int64, replyTo int, text string) error {
	return f.record(Call{Method: MethodReply, ChatID: chatID, MessageID: replyTo, Text: text})
}

// AnswerPress implements gateway.Gateway.
func (f *Fake) AnswerPress(_ context.Context, _ string, text string, alert bool) error {
	return f.record(Call{Method: MethodAnswerPress, Text: text, Alert: alert})
}

// Role implements gateway.Gateway. Unknown users are plain members.
func (f *Fake) Role(_ context.Context, chatID, userID int64) (gateway.Role, error) {
	if err := f.record(Call{Method: MethodRole, ChatID: chatID, UserID: userID}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if role, ok := f.roles[userID]; ok {
		return role, nil
	}
	return gateway.RoleMember, nil
}

var _ gateway.Gateway = (*Fake)(nil)
