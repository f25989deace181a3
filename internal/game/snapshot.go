package game

import (
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
)

// Snapshot is the client view of a round after a transition. The dealer's
// hole card is omitted until the dealer turn, and the seed is only disclosed
// once the round is finished.
type Snapshot struct {
	ID             string            `json:"id,omitempty"`
	Phase          Phase             `json:"phase"`
	Player         []blackjack.Card  `json:"player"`
	Dealer         []blackjack.Card  `json:"dealer"`
	DealerHidden   bool              `json:"dealer_hidden"`
	PlayerTotal    int               `json:"player_total"`
	PlayerSoft     bool              `json:"player_soft"`
	DealerTotal    int               `json:"dealer_total"`
	Outcome        blackjack.Outcome `json:"outcome"`
	Bet            decimal.Decimal   `json:"bet"`
	Payout         decimal.Decimal   `json:"payout"`
	Message        string            `json:"message"`
	CardsRemaining int               `json:"cards_remaining"`
	Seed           string            `json:"seed,omitempty"`
	History        []Step            `json:"history,omitempty"`
}

// Snapshot returns the client view of the round
func (r *Round) Snapshot() Snapshot {
	s := Snapshot{
		ID:             r.id,
		Phase:          r.phase,
		Player:         r.Player(),
		Outcome:        r.outcome,
		Bet:            r.bet,
		Payout:         r.payout,
		Message:        messageFor(r),
		CardsRemaining: r.deck.CardsRemaining(),
	}

	ps := blackjack.Evaluate(r.player)
	s.PlayerTotal = ps.Total
	s.PlayerSoft = ps.Soft

	if r.HoleRevealed() {
		s.Dealer = r.Dealer()
	} else {
		s.Dealer = []blackjack.Card{r.dealer[0]}
		s.DealerHidden = true
	}
	s.DealerTotal = blackjack.Total(s.Dealer)

	if r.IsFinished() {
		s.Seed = r.seed.String()
		s.History = r.History()
	}
	return s
}

func messageFor(r *Round) string {
	if r == nil {
		return "Place your bet to start"
	}
	switch r.phase {
	case Playing:
		return "Hit or stand?"
	case DealerTurn:
		return "Dealer's turn"
	case Finished:
	default:
		return ""
	}

	switch r.outcome {
	case blackjack.OutcomeBlackjack:
		return "Blackjack! You win"
	case blackjack.OutcomeWin:
		if blackjack.Evaluate(r.dealer).Bust {
			return "Dealer busts! You win"
		}
		return "You win!"
	case blackjack.OutcomePush:
		return "Push"
	case blackjack.OutcomeLose:
		if blackjack.Evaluate(r.player).Bust {
			return "Bust! You lose"
		}
		if blackjack.Evaluate(r.dealer).Blackjack {
			return "Dealer blackjack"
		}
		return "Dealer wins"
	default:
		return ""
	}
}
