package game

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
)

// Actor identifies who took a step in the round
type Actor string

const (
	ActorPlayer Actor = "player"
	ActorDealer Actor = "dealer"
)

// Action is a single thing that happened during a round
type Action string

const (
	ActionDeal   Action = "deal"
	ActionHit    Action = "hit"
	ActionStand  Action = "stand"
	ActionReveal Action = "reveal"
	ActionBust   Action = "bust"
)

// Step is one entry in a round's history
type Step struct {
	Actor  Actor           `json:"actor"`
	Action Action          `json:"action"`
	Card   *blackjack.Card `json:"card,omitempty"`
}

func (s Step) String() string {
	if s.Card != nil {
		return fmt.Sprintf("%s %s %s", s.Actor, s.Action, s.Card)
	}
	return fmt.Sprintf("%s %s", s.Actor, s.Action)
}

// Round is one hand of blackjack between a player and the dealer.
//
// A round moves playing -> dealerTurn -> finished, or straight to finished
// when the player busts. The outcome is set exactly once on entering
// finished. Every card dealt comes from the round's own deck, so player,
// dealer and remaining cards always add up to 52.
type Round struct {
	id      string
	seed    blackjack.Seed
	bet     decimal.Decimal
	rules   blackjack.Rules
	phase   Phase
	player  []blackjack.Card
	dealer  []blackjack.Card
	deck    *blackjack.Deck
	outcome blackjack.Outcome
	payout  decimal.Decimal
	history []Step

	startedAt  time.Time
	finishedAt time.Time
	now        func() time.Time
}

// NewRound deals a new round from seed. The deal order is player, dealer,
// player, dealer. A player natural skips straight to the dealer reveal and
// settles without the dealer drawing.
func NewRound(seed blackjack.Seed, bet decimal.Decimal, rules blackjack.Rules, opts ...RoundOption) (*Round, error) {
	cfg := &roundConfig{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	deck := cfg.deck
	if deck == nil {
		deck = blackjack.NewShuffledDeck(seed)
	}

	r := &Round{
		id:        cfg.id,
		seed:      seed,
		bet:       bet,
		rules:     rules,
		phase:     Playing,
		deck:      deck,
		now:       cfg.now,
		startedAt: cfg.now(),
	}

	cards, err := r.deck.Deal(4)
	if err != nil {
		return nil, fmt.Errorf("initial deal: %w", err)
	}
	r.player = []blackjack.Card{cards[0], cards[2]}
	r.dealer = []blackjack.Card{cards[1], cards[3]}
	r.record(ActorPlayer, ActionDeal, &cards[0])
	r.record(ActorDealer, ActionDeal, &cards[1])
	r.record(ActorPlayer, ActionDeal, &cards[2])
	// The hole card stays out of the history until it is revealed
	r.record(ActorDealer, ActionDeal, nil)

	if blackjack.Evaluate(r.player).Blackjack {
		r.phase = DealerTurn
		r.revealHole()
		r.finish()
	}

	return r, nil
}

// Hit draws one card for the player. A bust finishes the round as a loss.
// Under Rules.StandOn21 reaching 21 stands automatically; otherwise the
// round stays in Playing.
func (r *Round) Hit() error {
	if r.phase != Playing {
		return invalid(IntentHit, r.phase)
	}

	card, err := r.deck.DealOne()
	if err != nil {
		return fmt.Errorf("hit: %w", err)
	}
	r.player = append(r.player, card)
	r.record(ActorPlayer, ActionHit, &card)

	score := blackjack.Evaluate(r.player)
	switch {
	case score.Bust:
		r.record(ActorPlayer, ActionBust, nil)
		r.revealHole()
		r.finish()
	case score.Total == 21 && r.rules.StandOn21:
		return r.stand()
	}
	return nil
}

// Stand ends the player's turn and plays out the dealer
func (r *Round) Stand() error {
	if r.phase != Playing {
		return invalid(IntentStand, r.phase)
	}
	return r.stand()
}

func (r *Round) stand() error {
	r.record(ActorPlayer, ActionStand, nil)

	// Draw into a scratch copy so a failed draw leaves the round untouched
	deck := r.deck.Clone()
	dealer := append([]blackjack.Card(nil), r.dealer...)
	var drawn []blackjack.Card
	for r.rules.DealerShouldHit(dealer) {
		card, err := deck.DealOne()
		if err != nil {
			r.history = r.history[:len(r.history)-1]
			return fmt.Errorf("dealer draw: %w", err)
		}
		dealer = append(dealer, card)
		drawn = append(drawn, card)
	}

	r.phase = DealerTurn
	r.revealHole()
	r.deck = deck
	r.dealer = dealer
	for i := range drawn {
		r.record(ActorDealer, ActionHit, &drawn[i])
	}
	if blackjack.Evaluate(r.dealer).Bust {
		r.record(ActorDealer, ActionBust, nil)
	} else {
		r.record(ActorDealer, ActionStand, nil)
	}
	r.finish()
	return nil
}

func (r *Round) revealHole() {
	hole := r.dealer[1]
	r.record(ActorDealer, ActionReveal, &hole)
}

func (r *Round) finish() {
	if r.outcome != blackjack.OutcomeNone {
		panic("game: round outcome already set")
	}
	r.outcome = blackjack.Resolve(r.player, r.dealer)
	r.payout = r.rules.Payout(r.outcome, r.bet)
	r.phase = Finished
	r.finishedAt = r.now()
}

func (r *Round) record(actor Actor, action Action, card *blackjack.Card) {
	step := Step{Actor: actor, Action: action}
	if card != nil {
		c := *card
		step.Card = &c
	}
	r.history = append(r.history, step)
}

// ID returns the round identifier, if one was assigned
func (r *Round) ID() string { return r.id }

// Seed returns the deck seed the round was dealt from
func (r *Round) Seed() blackjack.Seed { return r.seed }

// Bet returns the wager
func (r *Round) Bet() decimal.Decimal { return r.bet }

// Rules returns the house rules the round is played under
func (r *Round) Rules() blackjack.Rules { return r.rules }

// Phase returns the current phase
func (r *Round) Phase() Phase { return r.phase }

// Outcome returns the result, or OutcomeNone while the round is live
func (r *Round) Outcome() blackjack.Outcome { return r.outcome }

// Payout returns the signed credit change once the round is finished
func (r *Round) Payout() decimal.Decimal { return r.payout }

// Player returns a copy of the player's cards
func (r *Round) Player() []blackjack.Card {
	return append([]blackjack.Card(nil), r.player...)
}

// Dealer returns a copy of the dealer's cards including the hole card
func (r *Round) Dealer() []blackjack.Card {
	return append([]blackjack.Card(nil), r.dealer...)
}

// CardsRemaining returns the number of undealt cards
func (r *Round) CardsRemaining() int {
	return r.deck.CardsRemaining()
}

// History returns the steps taken so far
func (r *Round) History() []Step {
	return append([]Step(nil), r.history...)
}

// IsFinished reports whether the round has been settled
func (r *Round) IsFinished() bool {
	return r.phase == Finished
}

// HoleRevealed reports whether the dealer's second card is visible
func (r *Round) HoleRevealed() bool {
	return r.phase >= DealerTurn
}

// StartedAt returns when the round was dealt
func (r *Round) StartedAt() time.Time { return r.startedAt }

// FinishedAt returns when the round finished, or the zero time
func (r *Round) FinishedAt() time.Time { return r.finishedAt }
