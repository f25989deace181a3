package settlement

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/game"
)

// Claim is a finished round as reported to a player, to be checked against
// its seed. Either Reveal (free play) or Seed (on-chain) must be set.
type Claim struct {
	Commitment string            `json:"commitment,omitempty"`
	Reveal     *fairness.Reveal  `json:"reveal,omitempty"`
	Seed       blackjack.Seed    `json:"seed"`
	Bet        decimal.Decimal   `json:"bet"`
	Player     []blackjack.Card  `json:"player"`
	Dealer     []blackjack.Card  `json:"dealer,omitempty"`
	Outcome    blackjack.Outcome `json:"outcome"`
}

// Verification is the independently replayed round
type Verification struct {
	Seed    blackjack.Seed    `json:"seed"`
	Player  []blackjack.Card  `json:"player"`
	Dealer  []blackjack.Card  `json:"dealer"`
	Outcome blackjack.Outcome `json:"outcome"`
	Payout  decimal.Decimal   `json:"payout"`
	History []game.Step       `json:"history"`
}

// Verify replays a claimed round. The player is assumed to have hit until
// holding as many cards as claimed, then stood. Any difference from the
// claim wraps ErrOutcomeMismatch; a bad reveal wraps
// fairness.ErrCommitmentMismatch.
func Verify(claim Claim, rules blackjack.Rules) (Verification, error) {
	seed, err := claimSeed(claim)
	if err != nil {
		return Verification{}, err
	}
	if len(claim.Player) > 0 && len(claim.Player) < 2 {
		return Verification{}, fmt.Errorf("player hand must hold at least two cards, got %d", len(claim.Player))
	}

	bet := claim.Bet
	if !bet.IsPositive() {
		bet = decimal.NewFromInt(1)
	}

	round, err := game.NewRound(seed, bet, rules)
	if err != nil {
		return Verification{}, err
	}
	for round.Phase() == game.Playing && len(round.Player()) < len(claim.Player) {
		if err := round.Hit(); err != nil {
			return Verification{}, err
		}
	}
	if round.Phase() == game.Playing {
		if err := round.Stand(); err != nil {
			return Verification{}, err
		}
	}

	v := Verification{
		Seed:    seed,
		Player:  round.Player(),
		Dealer:  round.Dealer(),
		Outcome: round.Outcome(),
		Payout:  round.Payout(),
		History: round.History(),
	}

	switch {
	case len(claim.Player) > 0 && !slices.Equal(claim.Player, v.Player):
		return v, fmt.Errorf("%w: player cards %s, replay dealt %s", ErrOutcomeMismatch,
			blackjack.FormatCards(claim.Player), blackjack.FormatCards(v.Player))
	case len(claim.Dealer) > 0 && !slices.Equal(claim.Dealer, v.Dealer):
		return v, fmt.Errorf("%w: dealer cards %s, replay dealt %s", ErrOutcomeMismatch,
			blackjack.FormatCards(claim.Dealer), blackjack.FormatCards(v.Dealer))
	case claim.Outcome != blackjack.OutcomeNone && claim.Outcome != v.Outcome:
		return v, fmt.Errorf("%w: claimed %s, replay gives %s", ErrOutcomeMismatch, claim.Outcome, v.Outcome)
	}
	return v, nil
}

func claimSeed(claim Claim) (blackjack.Seed, error) {
	if claim.Reveal == nil {
		if claim.Seed.IsZero() {
			return blackjack.Seed{}, fmt.Errorf("claim needs a seed or a reveal")
		}
		return claim.Seed, nil
	}

	seed := claim.Reveal.Seed()
	if claim.Commitment != "" {
		var err error
		if seed, err = fairness.Verify(claim.Commitment, *claim.Reveal); err != nil {
			return blackjack.Seed{}, err
		}
	}
	if !claim.Seed.IsZero() && claim.Seed != seed {
		return blackjack.Seed{}, fmt.Errorf("%w: seed %s does not follow from the reveal", ErrOutcomeMismatch, claim.Seed)
	}
	return seed, nil
}
