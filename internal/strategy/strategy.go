// Package strategy provides player policies for automated play: fixed
// thresholds, a basic-strategy chart, and user scripts.
package strategy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/game"
)

// Factory builds a fresh strategy. Scripted strategies are not safe for
// concurrent use, so each simulator worker gets its own.
type Factory func() (game.Strategy, error)

// Basic returns the hit/stand subset of basic strategy for a game with no
// doubling or splitting.
func Basic() game.Strategy {
	return game.StrategyFunc(func(view game.PlayerView) (game.Decision, error) {
		up := view.DealerUp.Value()
		total := view.Score.Total

		if view.Score.Soft {
			switch {
			case total >= 19:
				return game.DecisionStand, nil
			case total == 18:
				// Soft 18 stands against 2-8 and hits against 9, 10, A
				if up >= 9 {
					return game.DecisionHit, nil
				}
				return game.DecisionStand, nil
			default:
				return game.DecisionHit, nil
			}
		}

		switch {
		case total >= 17:
			return game.DecisionStand, nil
		case total >= 13:
			if up <= 6 {
				return game.DecisionStand, nil
			}
			return game.DecisionHit, nil
		case total == 12:
			if up >= 4 && up <= 6 {
				return game.DecisionStand, nil
			}
			return game.DecisionHit, nil
		default:
			return game.DecisionHit, nil
		}
	})
}

// MimicDealer hits exactly when the dealer would under rules
func MimicDealer(rules blackjack.Rules) game.Strategy {
	return game.StrategyFunc(func(view game.PlayerView) (game.Decision, error) {
		if rules.DealerShouldHit(view.Player) {
			return game.DecisionHit, nil
		}
		return game.DecisionStand, nil
	})
}

// Parse resolves a strategy spec:
//
//	basic           basic strategy chart
//	mimic           play like the dealer
//	stand:N         hit below N
//	script:PATH     JavaScript file defining decide()
func Parse(spec string, rules blackjack.Rules) (Factory, error) {
	name, arg, _ := strings.Cut(spec, ":")
	switch name {
	case "basic":
		return func() (game.Strategy, error) { return Basic(), nil }, nil
	case "mimic":
		return func() (game.Strategy, error) { return MimicDealer(rules), nil }, nil
	case "stand":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 2 || n > 21 {
			return nil, fmt.Errorf("invalid stand threshold %q", arg)
		}
		return func() (game.Strategy, error) { return game.StandOn(n), nil }, nil
	case "script":
		source, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		return func() (game.Strategy, error) { return NewScript(string(source)) }, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", spec)
	}
}
