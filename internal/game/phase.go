package game

import (
	"errors"
	"fmt"
)

// Phase is the lifecycle stage of a round
type Phase uint8

const (
	Betting Phase = iota
	Playing
	DealerTurn
	Finished
)

var phaseNames = [...]string{"betting", "playing", "dealerTurn", "finished"}

// String returns the wire name of the phase
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if string(text) == name {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("invalid phase %q", text)
}

// Intent names a player request against the round
type Intent string

const (
	IntentNewGame Intent = "new_game"
	IntentHit     Intent = "hit"
	IntentStand   Intent = "stand"
)

// ErrInvalidTransition is returned when an intent is not valid in the
// current phase. The round is left unchanged.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError records which intent was rejected in which phase
type TransitionError struct {
	Intent Intent
	Phase  Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed during %s: %v", e.Intent, e.Phase, ErrInvalidTransition)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func invalid(intent Intent, phase Phase) error {
	return &TransitionError{Intent: intent, Phase: phase}
}
