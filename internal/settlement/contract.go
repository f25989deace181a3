package settlement

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/internal/chain"
)

// PendingError is returned when a submitted transaction could not be
// confirmed, either because the wait window ran out or because polling for
// its receipt failed. The round can be resumed with its hash.
type PendingError struct {
	TxHash string
	// Err is why confirmation stopped; nil means the wait timed out
	Err error
}

func (e *PendingError) Error() string {
	if e.Err == nil || errors.Is(e.Err, chain.ErrConfirmationTimeout) {
		return fmt.Sprintf("transaction %s is still pending", e.TxHash)
	}
	return fmt.Sprintf("transaction %s is unconfirmed: %v", e.TxHash, e.Err)
}

func (e *PendingError) Unwrap() error {
	if e.Err == nil {
		return chain.ErrConfirmationTimeout
	}
	return e.Err
}

// Contract settles rounds through the on-chain contract. The contract plays
// the whole round in one transaction, so Open returns an already played
// ticket and Settle reconciles the local replay with the chain's result.
type Contract struct {
	client *chain.Client
	logger *log.Logger
}

// NewContract creates an on-chain strategy using the relay client.
func NewContract(client *chain.Client, logger *log.Logger) *Contract {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Contract{client: client, logger: logger.WithPrefix("settlement")}
}

func (c *Contract) Mode() Mode {
	return ModeOnChain
}

// Balance returns the player's on-chain balance.
func (c *Contract) Balance(ctx context.Context, player string) (decimal.Decimal, error) {
	balance, err := c.client.Balance(ctx, player)
	if err != nil {
		return decimal.Zero, classify("balance", err)
	}
	return balance, nil
}

// Open submits playGame() and waits for the receipt.
func (c *Contract) Open(ctx context.Context, wager Wager) (Ticket, error) {
	tx, err := c.client.PlayGame(ctx, chain.PlayRequest{
		RequestID:  wager.RequestID,
		Player:     wager.Player,
		Bet:        wager.Bet,
		ClientSeed: wager.ClientSeed,
	})
	if err != nil {
		return Ticket{}, classify("submit", err)
	}
	c.logger.Info("Submitted on-chain game", "session", wager.SessionID, "tx", tx, "bet", wager.Bet)
	return c.Resume(ctx, tx)
}

// Resume waits for a previously submitted transaction.
func (c *Contract) Resume(ctx context.Context, txHash string) (Ticket, error) {
	receipt, err := c.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		// A reverted transaction is final; anything else may still land
		var reverted *chain.RevertedError
		if errors.As(err, &reverted) {
			return Ticket{}, classify("confirm", err)
		}
		c.logger.Warn("Could not confirm transaction", "tx", txHash, "error", err)
		return Ticket{}, &PendingError{TxHash: txHash, Err: err}
	}

	return Ticket{
		Mode:   ModeOnChain,
		Seed:   receipt.Seed,
		Bet:    receipt.Bet,
		TxHash: receipt.TxHash,
		Played: true,
		chain: &chainResult{
			outcome: receipt.Outcome,
			payout:  receipt.Payout,
			balance: receipt.Balance,
		},
	}, nil
}

// Settle books the chain's result. A local replay that disagrees is logged
// and flagged on the receipt.
func (c *Contract) Settle(ctx context.Context, ticket Ticket, result Result) (Receipt, error) {
	if ticket.Mode != ModeOnChain || ticket.chain == nil {
		return Receipt{}, &FailureError{Op: "settle", Err: fmt.Errorf("ticket was not opened on-chain")}
	}

	booked := ticket.chain
	mismatch := result.Outcome != booked.outcome || !result.Payout.Equal(booked.payout)
	if mismatch {
		c.logger.Warn("Local replay disagrees with chain",
			"tx", ticket.TxHash,
			"local", result.Outcome,
			"chain", booked.outcome,
			"local_payout", result.Payout,
			"chain_payout", booked.payout)
	}

	balance := booked.balance
	return Receipt{
		Mode:     ModeOnChain,
		Outcome:  booked.outcome,
		Payout:   booked.payout,
		Balance:  &balance,
		TxHash:   ticket.TxHash,
		Mismatch: mismatch,
	}, nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var authErr *chain.AuthError
	var reverted *chain.RevertedError
	switch {
	case errors.As(err, &authErr), errors.As(err, &reverted), errors.Is(err, chain.ErrInsufficientFunds):
		return &FailureError{Op: op, Err: err}
	default:
		return &FailureError{Op: op, Retryable: true, Err: err}
	}
}
