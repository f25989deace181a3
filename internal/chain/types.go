package chain

import (
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
)

// Status is the confirmation state of a playGame transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
)

// PlayRequest asks the relay to submit playGame() for a player
type PlayRequest struct {
	// RequestID makes submission idempotent across retries
	RequestID  string          `json:"request_id"`
	Player     string          `json:"player"`
	Bet        decimal.Decimal `json:"bet"`
	ClientSeed string          `json:"client_seed,omitempty"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

// Receipt is the relay's view of a playGame transaction. Result fields are
// only populated once the transaction is confirmed.
type Receipt struct {
	TxHash  string            `json:"tx_hash"`
	Status  Status            `json:"status"`
	Block   uint64            `json:"block,omitempty"`
	Player  string            `json:"player"`
	Bet     decimal.Decimal   `json:"bet"`
	Seed    blackjack.Seed    `json:"seed"`
	Outcome blackjack.Outcome `json:"outcome"`
	Payout  decimal.Decimal   `json:"payout"`
	Balance decimal.Decimal   `json:"balance"`
	Hand    []blackjack.Card  `json:"player_cards,omitempty"`
	Dealer  []blackjack.Card  `json:"dealer_cards,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// Confirmed reports whether the transaction has a final result
func (r *Receipt) Confirmed() bool {
	return r.Status == StatusConfirmed
}

type balanceResponse struct {
	Player  string          `json:"player"`
	Balance decimal.Decimal `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
