package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lox/celojack/blackjack"
)

// ErrCommitmentMismatch is returned when a revealed server seed does not hash
// to the commitment published before the round.
var ErrCommitmentMismatch = errors.New("server seed does not match commitment")

// NewServerSeed draws a fresh server seed from crypto/rand
func NewServerSeed() (blackjack.Seed, error) {
	return NewServerSeedFrom(rand.Reader)
}

// NewServerSeedFrom draws a server seed from r. Deterministic readers are
// useful for replayable simulations.
func NewServerSeedFrom(r io.Reader) (blackjack.Seed, error) {
	var seed blackjack.Seed
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return seed, fmt.Errorf("failed to read server seed: %w", err)
	}
	return seed, nil
}

// Commit returns the public commitment for a server seed: hex(sha256(seed))
func Commit(serverSeed blackjack.Seed) string {
	sum := sha256.Sum256(serverSeed[:])
	return hex.EncodeToString(sum[:])
}

// Reveal is everything needed to rebuild a round's deck once it is over
type Reveal struct {
	ServerSeed blackjack.Seed `json:"server_seed"`
	ClientSeed string         `json:"client_seed"`
	Nonce      uint64         `json:"nonce"`
}

// Seed returns the deck seed the reveal derives
func (r Reveal) Seed() blackjack.Seed {
	return DeriveSeed(r.ServerSeed, r.ClientSeed, r.Nonce)
}

// Verify checks the reveal against its commitment and returns the deck seed
func Verify(commitment string, r Reveal) (blackjack.Seed, error) {
	want := strings.ToLower(strings.TrimPrefix(commitment, "0x"))
	got := Commit(r.ServerSeed)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return blackjack.Seed{}, fmt.Errorf("commitment %s: %w", commitment, ErrCommitmentMismatch)
	}
	return r.Seed(), nil
}
