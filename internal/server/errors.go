package server

import (
	"errors"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/game"
	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/stats"
	"github.com/lox/celojack/internal/store"
)

// Error codes sent to clients
const (
	CodeInvalidMessage      = "invalid_message"
	CodeUnknownMessageType  = "unknown_message_type"
	CodeUnknownIntent       = "unknown_intent"
	CodeInvalidTransition   = "invalid_transition"
	CodeInvalidBet          = "invalid_bet"
	CodeInvalidMode         = "invalid_mode"
	CodeInvalidSession      = "invalid_session"
	CodeInsufficientCredits = "insufficient_credits"
	CodeResetNotAllowed     = "reset_not_allowed"
	CodeRoundInProgress     = "round_in_progress"
	CodeWrongMode           = "wrong_mode"
	CodeOnChainUnavailable  = "onchain_unavailable"
	CodeSettlementPending   = "settlement_pending"
	CodeSettlementFailed    = "settlement_failed"
	CodeSettlementRejected  = "settlement_rejected"
	CodeOutcomeMismatch     = "outcome_mismatch"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal"
)

// ErrorCode maps a session error to the code a client sees
func ErrorCode(err error) string {
	var failure *settlement.FailureError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, game.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, session.ErrSettlementPending):
		return CodeSettlementPending
	case errors.Is(err, stats.ErrInsufficientCredits):
		return CodeInsufficientCredits
	case errors.Is(err, stats.ErrResetNotAllowed):
		return CodeResetNotAllowed
	case errors.Is(err, session.ErrRoundInProgress):
		return CodeRoundInProgress
	case errors.Is(err, session.ErrWrongMode):
		return CodeWrongMode
	case errors.Is(err, session.ErrOnChainUnavailable):
		return CodeOnChainUnavailable
	case errors.Is(err, session.ErrUnknownIntent):
		return CodeUnknownIntent
	case errors.Is(err, blackjack.ErrInvalidBet):
		return CodeInvalidBet
	case errors.Is(err, settlement.ErrUnknownMode):
		return CodeInvalidMode
	case errors.Is(err, store.ErrInvalidKey):
		return CodeInvalidSession
	case errors.Is(err, settlement.ErrOutcomeMismatch):
		return CodeOutcomeMismatch
	case errors.Is(err, settlement.ErrSettlementFailed):
		return CodeSettlementFailed
	case errors.As(err, &failure):
		return CodeSettlementRejected
	default:
		return CodeInternal
	}
}
