// Package game implements the blackjack round state machine.
//
// A Round is dealt from a seed and moves through playing, dealerTurn and
// finished. A Table owns the current round of a session and rejects intents
// that are not valid in the current phase with ErrInvalidTransition.
//
// # Basic Usage
//
//	t := game.NewTable(blackjack.DefaultRules())
//	round, err := t.NewGame(seed, decimal.NewFromInt(10))
//	// ...
//	if err := t.Hit(); errors.Is(err, game.ErrInvalidTransition) {
//	    // round already finished
//	}
//	snap := t.Snapshot()
//
// # Deterministic Testing
//
// Rounds dealt from the same seed are identical. For exact hands use a
// stacked deck:
//
//	deck, _ := blackjack.StackedDeck(blackjack.MustParseCards("As 6c Kd Ad")...)
//	round, _ := game.NewRound(seed, bet, rules, game.WithDeck(deck))
//
// # Automated Play
//
// AutoPlay drives a round with a Strategy. Contract settlement uses
// StandOn(rules.AutoStandOn) so a round can be replayed from the chain seed.
package game
