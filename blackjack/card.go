package blackjack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit uint8

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

var suitSymbols = [...]string{"♠", "♥", "♦", "♣"}
var suitLetters = [...]string{"s", "h", "d", "c"}

// String returns the suit symbol
func (s Suit) String() string {
	if int(s) < len(suitSymbols) {
		return suitSymbols[s]
	}
	return "?"
}

// Letter returns the single ASCII letter used in compact card notation
func (s Suit) Letter() string {
	if int(s) < len(suitLetters) {
		return suitLetters[s]
	}
	return "?"
}

// IsRed returns true for hearts and diamonds
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// ParseSuit accepts either a symbol or a letter (case-insensitive)
func ParseSuit(s string) (Suit, error) {
	for i := range suitSymbols {
		if s == suitSymbols[i] || strings.EqualFold(s, suitLetters[i]) {
			return Suit(i), nil
		}
	}
	return 0, fmt.Errorf("invalid suit %q", s)
}

// Rank represents a card rank. Ace is 1, King is 13.
type Rank uint8

const (
	Ace Rank = iota + 1
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

var rankNames = [...]string{"", "A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// String returns the rank label ("A", "2".."10", "J", "Q", "K")
func (r Rank) String() string {
	if r >= Ace && r <= King {
		return rankNames[r]
	}
	return "?"
}

// Value returns the blackjack value of the rank with aces counted as 11
func (r Rank) Value() int {
	switch {
	case r == Ace:
		return 11
	case r >= Ten:
		return 10
	default:
		return int(r)
	}
}

// ParseRank accepts "A", "2".."10", "T", "J", "Q", "K" (case-insensitive)
func ParseRank(s string) (Rank, error) {
	if strings.EqualFold(s, "T") {
		return Ten, nil
	}
	for r := Ace; r <= King; r++ {
		if strings.EqualFold(s, rankNames[r]) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("invalid rank %q", s)
}

// Card is a single playing card. The zero value is not a valid card.
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// String returns the display form of a card (e.g. "A♠", "10♦")
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// Code returns the compact ASCII form of a card (e.g. "As", "10d")
func (c Card) Code() string {
	return c.Rank.String() + c.Suit.Letter()
}

// Valid reports whether the card has an in-range rank and suit
func (c Card) Valid() bool {
	return c.Rank >= Ace && c.Rank <= King && c.Suit <= Clubs
}

// IsAce returns true if the card is an ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// Value returns the blackjack value with aces counted as 11
func (c Card) Value() int {
	return c.Rank.Value()
}

type cardJSON struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// MarshalJSON encodes a card as {"rank":"A","suit":"♠"}
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{Rank: c.Rank.String(), Suit: c.Suit.String()})
}

// UnmarshalJSON decodes the object form, and also accepts a compact string ("As")
func (c *Card) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		parsed, err := ParseCard(code)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}

	var raw cardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}
	rank, err := ParseRank(raw.Rank)
	if err != nil {
		return err
	}
	suit, err := ParseSuit(raw.Suit)
	if err != nil {
		return err
	}
	*c = NewCard(rank, suit)
	return nil
}

// ParseCard parses a card from compact notation. The rank comes first and
// the suit last, as a letter or a symbol: "As", "Th", "10h", "K♦".
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Card{}, fmt.Errorf("empty card")
	}

	// The suit is the last rune so symbols (multi-byte) work too.
	runes := []rune(s)
	if len(runes) < 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	suit, err := ParseSuit(string(runes[len(runes)-1]))
	if err != nil {
		return Card{}, fmt.Errorf("invalid card %q: %w", s, err)
	}
	rank, err := ParseRank(string(runes[:len(runes)-1]))
	if err != nil {
		return Card{}, fmt.Errorf("invalid card %q: %w", s, err)
	}
	return NewCard(rank, suit), nil
}

// ParseCards parses whitespace or comma separated cards ("As Kd", "As,Kd")
func ParseCards(s string) ([]Card, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MustParseCards is ParseCards for tests and fixtures. It panics on error.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}

// FormatCards joins cards using their display form
func FormatCards(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
