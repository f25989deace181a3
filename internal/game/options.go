package game

import (
	"time"

	"github.com/lox/celojack/blackjack"
)

// RoundOption configures a Round during creation.
type RoundOption func(*roundConfig)

// roundConfig holds optional settings for NewRound.
type roundConfig struct {
	id   string
	deck *blackjack.Deck  // If provided, replaces the deck shuffled from the seed
	now  func() time.Time // Default: time.Now
}

// WithRoundID assigns an identifier to the round.
func WithRoundID(id string) RoundOption {
	return func(c *roundConfig) {
		c.id = id
	}
}

// WithDeck deals from a specific deck instead of the one derived from the
// seed. The seed is still recorded on the round.
func WithDeck(deck *blackjack.Deck) RoundOption {
	return func(c *roundConfig) {
		c.deck = deck
	}
}

// WithNow sets the time source used for round timestamps.
func WithNow(now func() time.Time) RoundOption {
	return func(c *roundConfig) {
		c.now = now
	}
}
