package blackjack

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rules holds the house rules that vary between tables
type Rules struct {
	// DealerHitsSoft17 makes the dealer draw on a soft 17 (H17).
	DealerHitsSoft17 bool `json:"dealer_hits_soft17"`
	// BlackjackPays is the multiple of the bet paid for a natural.
	BlackjackPays decimal.Decimal `json:"blackjack_pays"`
	// AutoStandOn is the total at which automated play stands.
	AutoStandOn int `json:"auto_stand_on"`
	// StandOn21 ends the player's turn when a hit reaches 21.
	StandOn21 bool `json:"stand_on_21"`
	// MinBet and MaxBet bound wagers. A zero MaxBet means no limit.
	MinBet decimal.Decimal `json:"min_bet"`
	MaxBet decimal.Decimal `json:"max_bet"`
}

// DefaultRules returns H17 with blackjack paying 3:2
func DefaultRules() Rules {
	return Rules{
		DealerHitsSoft17: true,
		BlackjackPays:    decimal.NewFromFloat(1.5),
		AutoStandOn:      17,
		MinBet:           decimal.NewFromInt(1),
		MaxBet:           decimal.Zero,
	}
}

// Validate checks the rules are internally consistent
func (r Rules) Validate() error {
	var errs []error
	if !r.BlackjackPays.IsPositive() {
		errs = append(errs, fmt.Errorf("blackjack_pays must be positive, got %s", r.BlackjackPays))
	}
	if r.AutoStandOn < 12 || r.AutoStandOn > 21 {
		errs = append(errs, fmt.Errorf("auto_stand_on must be between 12 and 21, got %d", r.AutoStandOn))
	}
	if r.MinBet.IsNegative() {
		errs = append(errs, fmt.Errorf("min_bet must not be negative, got %s", r.MinBet))
	}
	if r.MaxBet.IsPositive() && r.MaxBet.LessThan(r.MinBet) {
		errs = append(errs, fmt.Errorf("max_bet %s is below min_bet %s", r.MaxBet, r.MinBet))
	}
	return errors.Join(errs...)
}

// DealerShouldHit reports whether the dealer must draw another card
func (r Rules) DealerShouldHit(hand []Card) bool {
	s := Evaluate(hand)
	if s.Total < 17 {
		return true
	}
	return s.Total == 17 && s.Soft && r.DealerHitsSoft17
}

// ErrInvalidBet is returned for wagers outside the table limits
var ErrInvalidBet = errors.New("invalid bet")

// CheckBet validates a wager against the table limits
func (r Rules) CheckBet(bet decimal.Decimal) error {
	if !bet.IsPositive() {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidBet, bet)
	}
	if bet.LessThan(r.MinBet) {
		return fmt.Errorf("%w: %s is below the minimum %s", ErrInvalidBet, bet, r.MinBet)
	}
	if r.MaxBet.IsPositive() && bet.GreaterThan(r.MaxBet) {
		return fmt.Errorf("%w: %s is above the maximum %s", ErrInvalidBet, bet, r.MaxBet)
	}
	return nil
}

// Payout returns the signed credit change for an outcome. Blackjack pays
// BlackjackPays times the bet, a win pays even money, a push returns zero and
// a loss forfeits the bet.
func (r Rules) Payout(o Outcome, bet decimal.Decimal) decimal.Decimal {
	switch o {
	case OutcomeBlackjack:
		return bet.Mul(r.BlackjackPays)
	case OutcomeWin:
		return bet
	case OutcomeLose:
		return bet.Neg()
	default:
		return decimal.Zero
	}
}
