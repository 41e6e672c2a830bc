package engine

import (
	"fmt"
)

// Mode selects how the aggregate flags are reconciled.
type Mode string

const (
	// ModeFocusedOnly derives every flag from the focused session only.
	ModeFocusedOnly Mode = "focused_only"
	// ModeAnySession ORs the flags of every tracked session.
	ModeAnySession Mode = "any_session"
)

// PlayingSignal selects what counts as "playing".
type PlayingSignal string

const (
	// SignalStatus: playing iff the playback status is Playing.
	SignalStatus PlayingSignal = "status"
	// SignalPlayDisabled: playing iff controls exist and play is not
	// enabled. Some transport-control implementations do not keep these
	// two in lockstep.
	SignalPlayDisabled PlayingSignal = "play_disabled"
)

type Policy struct {
	Mode          Mode
	PlayingSignal PlayingSignal // empty selects the mode default
}

func DefaultPolicy() Policy {
	return Policy{Mode: ModeFocusedOnly}
}

// ParseMode accepts the config spellings of a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFocusedOnly, ModeAnySession:
		return Mode(s), nil
	case "":
		return ModeFocusedOnly, nil
	}
	return "", fmt.Errorf("unknown reconcile mode %q", s)
}

func ParsePlayingSignal(s string) (PlayingSignal, error) {
	switch PlayingSignal(s) {
	case "", SignalStatus, SignalPlayDisabled:
		return PlayingSignal(s), nil
	}
	return "", fmt.Errorf("unknown playing signal %q", s)
}

// signal resolves the effective playing signal for the policy.
func (p Policy) signal() PlayingSignal {
	if p.PlayingSignal != "" {
		return p.PlayingSignal
	}
	if p.Mode == ModeAnySession {
		return SignalPlayDisabled
	}
	return SignalStatus
}

func (p Policy) normalized() Policy {
	if p.Mode == "" {
		p.Mode = ModeFocusedOnly
	}
	return p
}
