// Package blackjack contains the pure building blocks of a provably fair
// blackjack round: cards, the seeded deck, hand evaluation, outcome
// resolution and payout rules.
//
// Nothing in this package keeps state beyond a Deck's draw position, so every
// function can be replayed from a seed to verify a round after the fact:
//
//	deck := blackjack.NewShuffledDeck(seed)
//	cards, _ := deck.Deal(4) // player, dealer, player, dealer
//	score := blackjack.Evaluate([]blackjack.Card{cards[0], cards[2]})
//
// Phase handling for a live round lives in internal/game.
package blackjack
