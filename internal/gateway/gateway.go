// Package gateway defines the chat platform operations the bot depends on.
package gateway

import (
	"context"
	"errors"

	"github.com/ashureev/gatekeeper/internal/domain"
)

// ErrNotModified is returned when an edit would leave a message unchanged.
var ErrNotModified = errors.New("message is not modified")

// Permissions is the set of posting rights applied to a participant.
type Permissions struct {
	SendMessages bool
	SendMedia    bool
	SendPolls    bool
	SendOther    bool
	WebPreviews  bool
}

var (
	// Restricted blocks every kind of content.
	Restricted = Permissions{}
	// Default is the permission set restored after admission.
	Default = Permissions{
		SendMessages: true,
		SendMedia:    true,
		SendPolls:    true,
		SendOther:    true,
		WebPreviews:  true,
	}
)

// Button is one inline control.
type Button struct {
	Text string
	Data string
}

// Controls is an inline keyboard, row by row. An empty value strips it.
type Controls [][]Button

// Published identifies a posted challenge.
type Published struct {
	MessageID   int
	ChallengeID string
}

// Role is a participant's status in a chat.
type Role string

const (
	RoleCreator       Role = "creator"
	RoleAdministrator Role = "administrator"
	RoleMember        Role = "member"
	RoleRestricted    Role = "restricted"
	RoleLeft          Role = "left"
	RoleKicked        Role = "kicked"
)

// Elevated reports whether the role may override verification.
func (r Role) Elevated() bool {
	return r == RoleCreator || r == RoleAdministrator
}

// Gateway is the set of outbound platform commands.
type Gateway interface {
	// Restrict applies perms to the participant.
	Restrict(ctx context.Context, chatID, userID int64, perms Permissions) error

	// PublishChallenge posts the challenge with the given controls attached.
	PublishChallenge(ctx context.Context, chatID int64, c domain.Challenge, controls Controls) (Published, error)

	// EditControls replaces the inline keyboard of a message.
	EditControls(ctx context.Context, chatID int64, messageID int, controls Controls) error

	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	Ban(ctx context.Context, chatID, userID int64) error
	Unban(ctx context.Context, chatID, userID int64) error

	// SendNotice posts a message and returns its id.
	SendNotice(ctx context.Context, chatID int64, text string, silent bool) (int, error)

	// Reply answers a message in place.
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error

	// AnswerPress acknowledges a button press to the presser only.
	AnswerPress(ctx context.Context, pressID, text string, alert bool) error

	Role(ctx context.Context, chatID, userID int64) (Role, error)
}
