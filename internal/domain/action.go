package domain

import (
	"errors"
	"strconv"
	"strings"
)

// ActionKind is the administrator action carried by a control button.
type ActionKind string

const (
	ActionAdmit  ActionKind = "admit"
	ActionReject ActionKind = "reject"
	ActionNoop   ActionKind = "noop"
)

const actionPrefix = "htest"

// ErrUnknownAction is returned for callback data this bot did not produce.
var ErrUnknownAction = errors.New("unknown control action")

// Action is the decoded payload of a control button.
type Action struct {
	Kind   ActionKind
	Target int64
}

// Encode packs the action into callback data.
func (a Action) Encode() string {
	if a.Kind == ActionNoop {
		return actionPrefix + ":" + string(ActionNoop)
	}
	return actionPrefix + ":" + string(a.Kind) + ":" + strconv.FormatInt(a.Target, 10)
}

// ParseAction decodes callback data produced by Encode.
func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[0] != actionPrefix {
		return Action{}, ErrUnknownAction
	}

	switch kind := ActionKind(parts[1]); kind {
	case ActionNoop:
		return Action{Kind: ActionNoop}, nil
	case ActionAdmit, ActionReject:
		if len(parts) != 3 {
			return Action{}, ErrUnknownAction
		}
		target, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Action{}, ErrUnknownAction
		}
		return Action{Kind: kind, Target: target}, nil
	default:
		return Action{}, ErrUnknownAction
	}
}
