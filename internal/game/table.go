package game

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/gameid"
)

// Table owns the single active round of a session and enforces which
// intents are valid in which phase.
type Table struct {
	rules  blackjack.Rules
	round  *Round
	clock  quartz.Clock
	ids    *gameid.Generator
	logger *log.Logger
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithClock sets the clock used for round timestamps.
func WithClock(clock quartz.Clock) TableOption {
	return func(t *Table) {
		t.clock = clock
	}
}

// WithLogger sets the table logger.
func WithLogger(logger *log.Logger) TableOption {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithIDGenerator sets the generator used for round IDs.
func WithIDGenerator(ids *gameid.Generator) TableOption {
	return func(t *Table) {
		t.ids = ids
	}
}

// NewTable creates a table in the betting phase
func NewTable(rules blackjack.Rules, opts ...TableOption) *Table {
	t := &Table{
		rules: rules,
		clock: quartz.NewReal(),
		ids:   gameid.NewGenerator(nil),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.New(os.Stderr)
	}
	return t
}

// Rules returns the table's house rules
func (t *Table) Rules() blackjack.Rules {
	return t.rules
}

// Phase returns the phase of the current round, or Betting before the first
func (t *Table) Phase() Phase {
	if t.round == nil {
		return Betting
	}
	return t.round.Phase()
}

// Round returns the current round, or nil before the first deal
func (t *Table) Round() *Round {
	return t.round
}

// NewGame deals a fresh round. It is only valid before the first round or
// once the current round has finished.
func (t *Table) NewGame(seed blackjack.Seed, bet decimal.Decimal, opts ...RoundOption) (*Round, error) {
	if phase := t.Phase(); phase != Betting && phase != Finished {
		return nil, invalid(IntentNewGame, phase)
	}
	if err := t.rules.CheckBet(bet); err != nil {
		return nil, err
	}

	opts = append([]RoundOption{
		WithRoundID(t.ids.Generate()),
		WithNow(func() time.Time { return t.clock.Now() }),
	}, opts...)

	round, err := NewRound(seed, bet, t.rules, opts...)
	if err != nil {
		return nil, err
	}
	t.round = round

	t.logger.Debug("Dealt round", "round", round.ID(), "player", blackjack.FormatCards(round.Player()))
	if round.IsFinished() {
		t.logFinished()
	}
	return round, nil
}

// Hit draws a card for the player in the current round
func (t *Table) Hit() error {
	if t.round == nil {
		return invalid(IntentHit, Betting)
	}
	if err := t.round.Hit(); err != nil {
		return err
	}
	if t.round.IsFinished() {
		t.logFinished()
	}
	return nil
}

// Stand ends the player's turn in the current round
func (t *Table) Stand() error {
	if t.round == nil {
		return invalid(IntentStand, Betting)
	}
	if err := t.round.Stand(); err != nil {
		return err
	}
	t.logFinished()
	return nil
}

// Restore installs a round rebuilt elsewhere, such as a round mirrored from
// a contract settlement. The table must be between rounds.
func (t *Table) Restore(round *Round) error {
	if phase := t.Phase(); phase != Betting && phase != Finished {
		return invalid(IntentNewGame, phase)
	}
	if round == nil {
		return errors.New("restore: nil round")
	}
	t.round = round
	return nil
}

// Snapshot returns the client view of the current round
func (t *Table) Snapshot() Snapshot {
	if t.round == nil {
		return Snapshot{Phase: Betting, Message: messageFor(nil)}
	}
	return t.round.Snapshot()
}

func (t *Table) logFinished() {
	r := t.round
	t.logger.Info("Round finished",
		"round", r.ID(),
		"outcome", r.Outcome(),
		"player", fmt.Sprintf("%s (%d)", blackjack.FormatCards(r.player), blackjack.Total(r.player)),
		"dealer", fmt.Sprintf("%s (%d)", blackjack.FormatCards(r.dealer), blackjack.Total(r.dealer)),
		"payout", r.Payout())
}
