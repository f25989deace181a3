// Package store persists session stats and finished rounds.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/stats"
)

// ErrInvalidKey is returned for keys that are empty or not path safe
var ErrInvalidKey = errors.New("invalid store key")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey checks that a key can be used by every backend
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Round is a finished round as kept for history and later verification
type Round struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Mode       string            `json:"mode"`
	Bet        decimal.Decimal   `json:"bet"`
	Outcome    blackjack.Outcome `json:"outcome"`
	Payout     decimal.Decimal   `json:"payout"`
	Player     []blackjack.Card  `json:"player"`
	Dealer     []blackjack.Card  `json:"dealer"`
	Seed       blackjack.Seed    `json:"seed"`
	Commitment string            `json:"commitment,omitempty"`
	Reveal     *fairness.Reveal  `json:"reveal,omitempty"`
	TxHash     string            `json:"tx_hash,omitempty"`
	Mismatch   bool              `json:"mismatch,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Store persists stats per key and rounds per session.
type Store interface {
	// Load returns the stats saved under key, or nil when there are none
	Load(ctx context.Context, key string) (*stats.Stats, error)
	Save(ctx context.Context, key string, s stats.Stats) error
	SaveRound(ctx context.Context, round Round) error
	// ListRounds returns up to limit rounds of a session, newest first.
	// A limit of zero or less returns all of them.
	ListRounds(ctx context.Context, sessionID string, limit int) ([]Round, error)
	Close() error
}

// Kind names a store backend
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Open creates a store of the given kind. path is a directory for file
// stores and a database file for SQLite.
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindFile:
		if path == "" {
			return nil, fmt.Errorf("file store needs a directory")
		}
		return NewFile(path), nil
	case KindSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite store needs a database path")
		}
		db, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// prepareRound assigns an ID to rounds saved without one
func prepareRound(round Round) (Round, error) {
	if err := ValidateKey(round.SessionID); err != nil {
		return round, err
	}
	if !round.Outcome.IsFinal() {
		return round, fmt.Errorf("round %s has no outcome", round.ID)
	}
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	return round, nil
}

// newestFirst reverses rounds kept in insertion order and applies limit
func newestFirst(rounds []Round, limit int) []Round {
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		out[len(rounds)-1-i] = r
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
