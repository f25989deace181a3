// Package settlement decides where a round's randomness comes from and where
// its result is booked. Free play commits to a server seed before the deal
// and reveals it afterwards; on-chain play submits playGame() through the
// relay and books the contract's result.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
)

// Mode names a settlement strategy
type Mode string

const (
	ModeFree    Mode = "free"
	ModeOnChain Mode = "onchain"
)

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFree, ModeOnChain:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
}

var (
	// ErrUnknownMode is returned by ParseMode
	ErrUnknownMode = errors.New("unknown settlement mode")
	// ErrSettlementFailed marks failures the player may retry
	ErrSettlementFailed = errors.New("settlement failed")
	// ErrOutcomeMismatch is returned when a replayed round disagrees with
	// the result that was booked for it
	ErrOutcomeMismatch = errors.New("outcome mismatch")
)

// FailureError describes a settlement failure.
type FailureError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("settlement %s: %v", e.Op, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// Is matches ErrSettlementFailed for retryable failures
func (e *FailureError) Is(target error) bool {
	return target == ErrSettlementFailed && e.Retryable
}

// Wager is what the player puts up for a round
type Wager struct {
	SessionID  string
	Player     string
	Bet        decimal.Decimal
	ClientSeed string
	// RequestID deduplicates retried submissions
	RequestID string
}

// Ticket is an opened round: the seed to deal from plus whatever the
// strategy needs to settle it later.
type Ticket struct {
	Mode Mode
	Seed blackjack.Seed
	Bet  decimal.Decimal

	// Commitment is published before the deal in free play
	Commitment string
	Nonce      uint64

	// TxHash identifies the playGame transaction in on-chain play
	TxHash string
	// Played is set when the round was already played to completion
	// elsewhere and the local copy only mirrors it
	Played bool

	reveal fairness.Reveal
	chain  *chainResult
}

type chainResult struct {
	outcome blackjack.Outcome
	payout  decimal.Decimal
	balance decimal.Decimal
}

// Result is the locally computed outcome of a round
type Result struct {
	RoundID string
	Outcome blackjack.Outcome
	Payout  decimal.Decimal
}

// Receipt records how a round was settled
type Receipt struct {
	Mode    Mode              `json:"mode"`
	Outcome blackjack.Outcome `json:"outcome"`
	Payout  decimal.Decimal   `json:"payout"`

	// Balance is the authoritative balance after settlement, when the
	// settlement layer keeps one
	Balance *decimal.Decimal `json:"balance,omitempty"`

	Commitment string           `json:"commitment,omitempty"`
	Reveal     *fairness.Reveal `json:"reveal,omitempty"`
	TxHash     string           `json:"tx_hash,omitempty"`

	// Mismatch is set when the local replay disagreed with the booked
	// result. The booked result wins.
	Mismatch bool `json:"mismatch,omitempty"`
}

// Strategy opens and settles rounds
type Strategy interface {
	Mode() Mode
	Open(ctx context.Context, wager Wager) (Ticket, error)
	Settle(ctx context.Context, ticket Ticket, result Result) (Receipt, error)
}
