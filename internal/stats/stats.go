// Package stats aggregates per-session round results and credits.
package stats

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
)

var (
	// ErrResetNotAllowed is returned when resetting an aggregator that mirrors
	// an on-chain balance.
	ErrResetNotAllowed = errors.New("reset not allowed for on-chain balance")
	// ErrInsufficientCredits is returned when a bet exceeds the balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// DefaultStartingCredits is the free-play balance a new session starts with
var DefaultStartingCredits = decimal.NewFromInt(1000)

// Stats is the persisted summary of a session's rounds
type Stats struct {
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Pushes     int             `json:"pushes"`
	Blackjacks int             `json:"blackjacks"`
	Rounds     int             `json:"rounds"`
	Credits    decimal.Decimal `json:"credits"`
	Net        decimal.Decimal `json:"net"`
}

// WinRate returns the percentage of rounds won, naturals included
func (s Stats) WinRate() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return float64(s.Wins+s.Blackjacks) / float64(s.Rounds) * 100
}

// Aggregator tracks results for one mode of one session. It is not safe for
// concurrent use; the owning session serialises access.
type Aggregator struct {
	stats    Stats
	starting decimal.Decimal
	onChain  bool
}

// NewAggregator returns a free-play aggregator holding starting credits
func NewAggregator(starting decimal.Decimal) *Aggregator {
	return &Aggregator{
		stats:    Stats{Credits: starting},
		starting: starting,
	}
}

// NewOnChainAggregator returns an aggregator whose credits mirror a chain
// balance. Its counters cannot be reset.
func NewOnChainAggregator(balance decimal.Decimal) *Aggregator {
	a := NewAggregator(balance)
	a.onChain = true
	return a
}

// OnChain reports whether credits mirror a chain balance
func (a *Aggregator) OnChain() bool {
	return a.onChain
}

// Record counts a finished round and applies its payout to credits
func (a *Aggregator) Record(outcome blackjack.Outcome, payout decimal.Decimal) error {
	switch outcome {
	case blackjack.OutcomeWin:
		a.stats.Wins++
	case blackjack.OutcomeBlackjack:
		a.stats.Blackjacks++
	case blackjack.OutcomeLose:
		a.stats.Losses++
	case blackjack.OutcomePush:
		a.stats.Pushes++
	default:
		return fmt.Errorf("cannot record outcome %s", outcome)
	}
	a.stats.Rounds++
	a.stats.Credits = a.stats.Credits.Add(payout)
	a.stats.Net = a.stats.Net.Add(payout)
	return nil
}

// Reset zeroes the counters and restores the starting credits
func (a *Aggregator) Reset() error {
	if a.onChain {
		return ErrResetNotAllowed
	}
	a.stats = Stats{Credits: a.starting}
	return nil
}

// CanCover checks the balance can absorb losing bet
func (a *Aggregator) CanCover(bet decimal.Decimal) error {
	if a.stats.Credits.LessThan(bet) {
		return fmt.Errorf("bet %s with balance %s: %w", bet, a.stats.Credits, ErrInsufficientCredits)
	}
	return nil
}

// SetCredits replaces the balance, used to sync with the chain
func (a *Aggregator) SetCredits(credits decimal.Decimal) {
	a.stats.Credits = credits
}

// Restore loads previously persisted stats
func (a *Aggregator) Restore(s Stats) {
	a.stats = s
}

// Stats returns a copy of the current stats
func (a *Aggregator) Stats() Stats {
	return a.stats
}

// Credits returns the current balance
func (a *Aggregator) Credits() decimal.Decimal {
	return a.stats.Credits
}

// Net returns the total credits won or lost since the last reset
func (a *Aggregator) Net() decimal.Decimal {
	return a.stats.Net
}

// WinRate returns the percentage of rounds won
func (a *Aggregator) WinRate() float64 {
	return a.stats.WinRate()
}
