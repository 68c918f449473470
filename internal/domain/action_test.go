package domain

import (
	"errors"
	"testing"
)

func TestActionRoundTrip(t *testing.T) {
	t.Parallel()

	for _, a := range []Action{
		{Kind: ActionAdmit, Target: 42},
		{Kind: ActionReject, Target: 7001234567},
		{Kind: ActionNoop},
	} {
		got, err := ParseAction(a.Encode())
		if err != nil {
			t.Fatalf("ParseAction(%q) failed: %v", a.Encode(), err)
		}
		if got != a {
			t.Fatalf("round trip mismatch: want %+v, got %+v", a, got)
		}
	}
}

func TestParseActionRejectsForeignData(t *testing.T) {
	t.Parallel()

	for _, data := range []string{"", "reaction_approve_1", "htest", "htest:admit", "htest:admit:x", "htest:ban:1", "other:admit:1"} {
		if _, err := ParseAction(data); !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("ParseAction(%q): expected ErrUnknownAction, got %v", data, err)
		}
	}
}
