package settlement

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/lox/celojack/internal/fairness"
)

// DefaultClientSeed is used until the player picks their own
const DefaultClientSeed = "celojack"

// Local settles free-play rounds with commit-reveal. Each round draws a
// fresh server seed and the next nonce.
type Local struct {
	entropy io.Reader

	mu         sync.Mutex
	clientSeed string
	nonce      uint64
}

// NewLocal creates a free-play strategy. A nil entropy source uses
// crypto/rand.
func NewLocal(entropy io.Reader, clientSeed string) *Local {
	if entropy == nil {
		entropy = rand.Reader
	}
	if clientSeed == "" {
		clientSeed = DefaultClientSeed
	}
	return &Local{entropy: entropy, clientSeed: clientSeed}
}

func (l *Local) Mode() Mode {
	return ModeFree
}

// ClientSeed returns the current client seed
func (l *Local) ClientSeed() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clientSeed
}

// SetClientSeed changes the client seed for subsequent rounds
func (l *Local) SetClientSeed(seed string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seed == "" {
		seed = DefaultClientSeed
	}
	l.clientSeed = seed
}

// Nonce returns the nonce of the most recently opened round
func (l *Local) Nonce() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonce
}

// SetNonce restores the nonce counter, e.g. after loading a session
func (l *Local) SetNonce(nonce uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonce = nonce
}

// Open draws a server seed, commits to it and derives the deck seed.
func (l *Local) Open(ctx context.Context, wager Wager) (Ticket, error) {
	if err := ctx.Err(); err != nil {
		return Ticket{}, err
	}

	serverSeed, err := fairness.NewServerSeedFrom(l.entropy)
	if err != nil {
		return Ticket{}, &FailureError{Op: "open", Retryable: true, Err: err}
	}

	l.mu.Lock()
	l.nonce++
	reveal := fairness.Reveal{ServerSeed: serverSeed, ClientSeed: l.clientSeed, Nonce: l.nonce}
	l.mu.Unlock()

	if wager.ClientSeed != "" {
		reveal.ClientSeed = wager.ClientSeed
	}

	return Ticket{
		Mode:       ModeFree,
		Seed:       reveal.Seed(),
		Bet:        wager.Bet,
		Commitment: fairness.Commit(serverSeed),
		Nonce:      reveal.Nonce,
		reveal:     reveal,
	}, nil
}

// Settle books the locally computed result and reveals the server seed.
func (l *Local) Settle(ctx context.Context, ticket Ticket, result Result) (Receipt, error) {
	if ticket.Mode != ModeFree || ticket.Commitment == "" {
		return Receipt{}, &FailureError{Op: "settle", Err: fmt.Errorf("ticket was not opened by free play")}
	}
	if !result.Outcome.IsFinal() {
		return Receipt{}, &FailureError{Op: "settle", Err: fmt.Errorf("round %s has no outcome", result.RoundID)}
	}
	if ticket.reveal.Seed() != ticket.Seed {
		return Receipt{}, &FailureError{Op: "settle", Err: fmt.Errorf("ticket seed does not match its reveal")}
	}

	reveal := ticket.reveal
	return Receipt{
		Mode:       ModeFree,
		Outcome:    result.Outcome,
		Payout:     result.Payout,
		Commitment: ticket.Commitment,
		Reveal:     &reveal,
	}, nil
}
