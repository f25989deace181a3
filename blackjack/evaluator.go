package blackjack

// Score is the evaluated value of a hand
type Score struct {
	Total     int  `json:"total"`
	Soft      bool `json:"soft"`
	Bust      bool `json:"bust"`
	Blackjack bool `json:"blackjack"`
}

// Evaluate scores a hand. Every ace starts at 11 and is demoted to 1, one at
// a time, while the total is over 21. A hand is soft when an ace is still
// counted as 11. Evaluating an empty hand is a programming error and panics.
func Evaluate(hand []Card) Score {
	if len(hand) == 0 {
		panic("blackjack: evaluate called with empty hand")
	}

	total := 0
	aces := 0
	for _, c := range hand {
		total += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}

	return Score{
		Total:     total,
		Soft:      aces > 0,
		Bust:      total > 21,
		Blackjack: len(hand) == 2 && total == 21,
	}
}

// Total is shorthand for Evaluate(hand).Total that returns 0 for an empty hand
func Total(hand []Card) int {
	if len(hand) == 0 {
		return 0
	}
	return Evaluate(hand).Total
}
