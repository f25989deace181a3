package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the relay does not know a transaction
	ErrNotFound = errors.New("chain: transaction not found")
	// ErrConfirmationTimeout is returned when a transaction stays pending
	// past the confirmation deadline. Its result may still arrive later.
	ErrConfirmationTimeout = errors.New("chain: confirmation timeout")
	// ErrInsufficientFunds is returned when the player balance cannot cover
	// the bet
	ErrInsufficientFunds = errors.New("chain: insufficient funds")
)

// HTTPError represents an unexpected HTTP response from the relay.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chain: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limits (429) and server errors (5xx).
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AuthError indicates the relay rejected the API token.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("chain: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// RevertedError is returned when playGame was mined but reverted.
type RevertedError struct {
	TxHash string
	Reason string
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("chain: transaction %s reverted: %s", e.TxHash, e.Reason)
}

// IsRetryable reports whether err is worth retrying against the relay
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}
