package blackjack

import (
	"encoding/json"
	"fmt"
)

// Outcome is the result of a finished round from the player's side
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeWin
	OutcomeLose
	OutcomePush
	OutcomeBlackjack
)

var outcomeNames = [...]string{"none", "win", "lose", "push", "blackjack"}

// String returns the wire name of the outcome
func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", o)
}

// IsWin reports whether the player won, including by blackjack
func (o Outcome) IsWin() bool {
	return o == OutcomeWin || o == OutcomeBlackjack
}

// IsFinal reports whether the outcome has been decided
func (o Outcome) IsFinal() bool {
	return o != OutcomeNone
}

// ParseOutcome converts a wire name back into an Outcome
func ParseOutcome(s string) (Outcome, error) {
	for i, name := range outcomeNames {
		if s == name {
			return Outcome(i), nil
		}
	}
	if s == "" {
		return OutcomeNone, nil
	}
	return OutcomeNone, fmt.Errorf("invalid outcome %q", s)
}

// MarshalJSON encodes the outcome as its name, or null when undecided
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o == OutcomeNone {
		return []byte("null"), nil
	}
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes an outcome name or null
func (o *Outcome) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OutcomeNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Resolve decides the outcome of two completed hands. Checks apply in order:
// player bust, both blackjack, player blackjack, dealer blackjack, dealer
// bust, then the higher total wins and equal totals push.
func Resolve(player, dealer []Card) Outcome {
	p := Evaluate(player)
	if p.Bust {
		return OutcomeLose
	}

	d := Evaluate(dealer)
	switch {
	case p.Blackjack && d.Blackjack:
		return OutcomePush
	case p.Blackjack:
		return OutcomeBlackjack
	case d.Blackjack:
		return OutcomeLose
	case d.Bust:
		return OutcomeWin
	case p.Total > d.Total:
		return OutcomeWin
	case p.Total < d.Total:
		return OutcomeLose
	default:
		return OutcomePush
	}
}
