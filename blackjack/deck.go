package blackjack

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// DeckSize is the number of cards in a single deck
const DeckSize = 52

// ErrDeckExhausted is returned when drawing more cards than remain
var ErrDeckExhausted = errors.New("deck exhausted")

// Seed is the 32-byte value a round's deck is shuffled from
type Seed [32]byte

// String returns the seed as lowercase hex
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether the seed is all zero bytes
func (s Seed) IsZero() bool {
	return s == Seed{}
}

// MarshalText implements encoding.TextMarshaler
func (s Seed) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Seed) UnmarshalText(text []byte) error {
	parsed, err := ParseSeed(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeed decodes a 64 character hex seed, with or without a 0x prefix
func ParseSeed(s string) (Seed, error) {
	var seed Seed
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("invalid seed: %w", err)
	}
	if len(b) != len(seed) {
		return seed, fmt.Errorf("invalid seed: expected %d bytes, got %d", len(seed), len(b))
	}
	copy(seed[:], b)
	return seed, nil
}

// CanonicalOrder returns the unshuffled deck: suits ♠♥♦♣, each A through K
func CanonicalOrder() [DeckSize]Card {
	var cards [DeckSize]Card
	i := 0
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Ace; rank <= King; rank++ {
			cards[i] = NewCard(rank, suit)
			i++
		}
	}
	return cards
}

// Deck is an ordered 52-card deck consumed front to back
type Deck struct {
	cards [DeckSize]Card
	next  int
}

// NewShuffledDeck returns the deck permutation determined by seed.
//
// The canonical order is shuffled with Fisher-Yates from the last index down.
// Each swap index is drawn from a SHA-256 counter stream over the seed
// (sha256(seed || uint64be(counter))), consumed two bytes at a time with
// rejection sampling so every index is equally likely. The same seed always
// yields the same deck, which lets anyone holding the seed rebuild the round.
func NewShuffledDeck(seed Seed) *Deck {
	d := &Deck{cards: CanonicalOrder()}
	stream := newShuffleStream(seed)
	for i := DeckSize - 1; i > 0; i-- {
		j := stream.intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d
}

// StackedDeck returns a deck whose first cards are top, followed by the rest
// of the canonical order. Used for replays and tests.
func StackedDeck(top ...Card) (*Deck, error) {
	if len(top) > DeckSize {
		return nil, fmt.Errorf("stacked deck: %d cards exceeds deck size", len(top))
	}

	seen := make(map[Card]bool, DeckSize)
	d := &Deck{}
	i := 0
	for _, c := range top {
		if !c.Valid() {
			return nil, fmt.Errorf("stacked deck: invalid card %v", c)
		}
		if seen[c] {
			return nil, fmt.Errorf("stacked deck: duplicate card %s", c)
		}
		seen[c] = true
		d.cards[i] = c
		i++
	}
	for _, c := range CanonicalOrder() {
		if !seen[c] {
			d.cards[i] = c
			i++
		}
	}
	return d, nil
}

// Deal draws n cards from the top of the deck
func (d *Deck) Deal(n int) ([]Card, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot deal %d cards", n)
	}
	if d.next+n > DeckSize {
		return nil, fmt.Errorf("deal %d with %d remaining: %w", n, d.CardsRemaining(), ErrDeckExhausted)
	}
	cards := make([]Card, n)
	copy(cards, d.cards[d.next:d.next+n])
	d.next += n
	return cards, nil
}

// DealOne draws a single card from the top of the deck
func (d *Deck) DealOne() (Card, error) {
	if d.next >= DeckSize {
		return Card{}, ErrDeckExhausted
	}
	c := d.cards[d.next]
	d.next++
	return c, nil
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return DeckSize - d.next
}

// Remaining returns a copy of the undealt cards in draw order
func (d *Deck) Remaining() []Card {
	out := make([]Card, d.CardsRemaining())
	copy(out, d.cards[d.next:])
	return out
}

// Order returns the full deck order including dealt cards
func (d *Deck) Order() []Card {
	out := make([]Card, DeckSize)
	copy(out, d.cards[:])
	return out
}

// Clone returns an independent copy of the deck at its current position
func (d *Deck) Clone() *Deck {
	c := *d
	return &c
}

type shuffleStream struct {
	seed    Seed
	counter uint64
	buf     [sha256.Size]byte
	pos     int
}

func newShuffleStream(seed Seed) *shuffleStream {
	return &shuffleStream{seed: seed, pos: sha256.Size}
}

func (s *shuffleStream) refill() {
	var msg [len(s.seed) + 8]byte
	copy(msg[:], s.seed[:])
	binary.BigEndian.PutUint64(msg[len(s.seed):], s.counter)
	s.buf = sha256.Sum256(msg[:])
	s.counter++
	s.pos = 0
}

func (s *shuffleStream) next16() uint16 {
	if s.pos+2 > len(s.buf) {
		s.refill()
	}
	v := binary.BigEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v
}

// intn returns a uniform value in [0, n) for 0 < n <= 65535
func (s *shuffleStream) intn(n int) int {
	m := uint16(n)
	limit := (uint16(0xFFFF) / m) * m
	for {
		r := s.next16()
		if r < limit {
			return int(r % m)
		}
	}
}
