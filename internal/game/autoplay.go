package game

import (
	"fmt"

	"github.com/lox/celojack/blackjack"
)

// Decision is a player choice during the playing phase
type Decision uint8

const (
	DecisionStand Decision = iota
	DecisionHit
)

func (d Decision) String() string {
	if d == DecisionHit {
		return "hit"
	}
	return "stand"
}

// PlayerView is what a strategy can see when deciding
type PlayerView struct {
	Player   []blackjack.Card
	DealerUp blackjack.Card
	Score    blackjack.Score
}

// Strategy chooses the player's actions for automated play
type Strategy interface {
	Decide(view PlayerView) (Decision, error)
}

// StrategyFunc adapts a function to the Strategy interface
type StrategyFunc func(view PlayerView) (Decision, error)

// Decide implements Strategy
func (f StrategyFunc) Decide(view PlayerView) (Decision, error) {
	return f(view)
}

// AutoPlay drives a dealt round to completion using strategy. A round that
// is already finished (a natural) is returned untouched.
func AutoPlay(r *Round, strategy Strategy) error {
	// A single deck cannot support more player draws than this
	for range blackjack.DeckSize {
		if r.Phase() != Playing {
			return nil
		}

		view := PlayerView{
			Player:   r.Player(),
			DealerUp: r.dealer[0],
			Score:    blackjack.Evaluate(r.player),
		}
		decision, err := strategy.Decide(view)
		if err != nil {
			return fmt.Errorf("strategy: %w", err)
		}

		switch decision {
		case DecisionHit:
			err = r.Hit()
		default:
			err = r.Stand()
		}
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("autoplay did not finish round %s", r.ID())
}

// StandOn is the fixed policy used by contract play: hit below total, then
// stand.
func StandOn(total int) Strategy {
	return StrategyFunc(func(view PlayerView) (Decision, error) {
		if view.Score.Total < total {
			return DecisionHit, nil
		}
		return DecisionStand, nil
	})
}
