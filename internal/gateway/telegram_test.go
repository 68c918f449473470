package gateway

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestClassifyMapsNotModified(t *testing.T) {
	t.Parallel()

	err := classify("edit reply markup", &tgbotapi.Error{
		Code:    400,
		Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same",
	})
	if !errors.Is(err, ErrNotModified) {
		t.Fatalf("expected ErrNotModified, got %v", err)
	}
}

func TestClassifyKeepsOtherErrors(t *testing.T) {
	t.Parallel()

	apiErr := &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}
	err := classify("edit reply markup", apiErr)
	if errors.Is(err, ErrNotModified) {
		t.Fatalf("unexpected ErrNotModified for %v", err)
	}
	var got *tgbotapi.Error
	if !errors.As(err, &got) || got.Code != 400 {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if classify("noop", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestKeyboardPreservesLayout(t *testing.T) {
	t.Parallel()

	kb := keyboard(Controls{
		{{Text: "yes", Data: "a"}, {Text: "no", Data: "b"}},
		{{Text: "5:00", Data: "c"}},
	})
	if len(kb.InlineKeyboard) != 2 || len(kb.InlineKeyboard[0]) != 2 || len(kb.InlineKeyboard[1]) != 1 {
		t.Fatalf("unexpected layout: %+v", kb.InlineKeyboard)
	}
	if data := kb.InlineKeyboard[1][0].CallbackData; data == nil || *data != "c" {
		t.Fatalf("unexpected callback data: %v", data)
	}
}

func TestRoleElevated(t *testing.T) {
	t.Parallel()

	for role, want := range map[Role]bool{
		RoleCreator:       true,
		RoleAdministrator: true,
		RoleMember:        false,
		RoleRestricted:    false,
		RoleLeft:          false,
	} {
		if got := role.Elevated(); got != want {
			t.Fatalf("%s.Elevated() = %v, want %v", role, got, want)
		}
	}
}
