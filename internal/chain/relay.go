package chain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/game"
)

// RelayConfig configures an in-process relay that plays the contract's
// rules locally. It backs the relay-sim command and the client tests.
type RelayConfig struct {
	Rules blackjack.Rules
	// Token, when set, must be presented as a bearer token
	Token string
	// StartingBalance is credited to players the first time they are seen
	StartingBalance decimal.Decimal
	// ConfirmDelay is how long a submitted game stays pending
	ConfirmDelay time.Duration
	// Entropy seeds the relay's server seed. Defaults to crypto/rand.
	Entropy io.Reader
	Clock   quartz.Clock
	Logger  *log.Logger
}

// Relay simulates the contract relay API.
type Relay struct {
	cfg        RelayConfig
	serverSeed blackjack.Seed
	router     chi.Router

	mu       sync.Mutex
	nonce    uint64
	block    uint64
	games    map[string]*relayGame
	requests map[string]string
	balances map[string]decimal.Decimal
	failures []int
}

type relayGame struct {
	receipt   Receipt
	confirmAt time.Time
}

// NewRelay creates a relay simulator.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("relay rules: %w", err)
	}
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr)
	}
	cfg.Logger = cfg.Logger.WithPrefix("relay")

	serverSeed, err := fairness.NewServerSeedFrom(cfg.Entropy)
	if err != nil {
		return nil, err
	}

	r := &Relay{
		cfg:        cfg,
		serverSeed: serverSeed,
		games:      make(map[string]*relayGame),
		requests:   make(map[string]string),
		balances:   make(map[string]decimal.Decimal),
	}
	r.router = r.routes()
	return r, nil
}

// ServeHTTP implements http.Handler.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Commitment is the hash of the relay's server seed.
func (r *Relay) Commitment() string {
	return fairness.Commit(r.serverSeed)
}

// SetBalance overrides a player's balance.
func (r *Relay) SetBalance(player string, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[strings.ToLower(player)] = balance
}

// FailNext makes the next n requests fail with the given status code.
func (r *Relay) FailNext(status, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range n {
		r.failures = append(r.failures, status)
	}
}

func (r *Relay) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(r.authenticate)
	router.Use(r.injectFailures)

	router.Route("/v1", func(v1 chi.Router) {
		v1.Post("/games", r.handlePlay)
		v1.Get("/games/{tx}", r.handleReceipt)
		v1.Get("/players/{player}/balance", r.handleBalance)
	})
	return router
}

func (r *Relay) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.Token != "" && req.Header.Get("Authorization") != "Bearer "+r.cfg.Token {
			writeRelayError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Relay) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		status := 0
		if len(r.failures) > 0 {
			status, r.failures = r.failures[0], r.failures[1:]
		}
		r.mu.Unlock()

		if status != 0 {
			writeRelayError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Relay) handlePlay(w http.ResponseWriter, req *http.Request) {
	var play PlayRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<16)).Decode(&play); err != nil {
		writeRelayError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if play.Player == "" {
		writeRelayError(w, http.StatusBadRequest, "player is required")
		return
	}
	if err := r.cfg.Rules.CheckBet(play.Bet); err != nil {
		writeRelayError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tx, ok := r.requests[play.RequestID]; ok && play.RequestID != "" {
		writeRelayJSON(w, http.StatusOK, submitResponse{TxHash: tx})
		return
	}

	player := strings.ToLower(play.Player)
	balance := r.balanceLocked(player)
	if balance.LessThan(play.Bet) {
		writeRelayError(w, http.StatusPaymentRequired, fmt.Sprintf("balance %s cannot cover bet %s", balance, play.Bet))
		return
	}

	r.nonce++
	clientSeed := play.ClientSeed
	if clientSeed == "" {
		clientSeed = player
	}
	seed := fairness.DeriveSeed(r.serverSeed, clientSeed, r.nonce)

	round, err := game.NewRound(seed, play.Bet, r.cfg.Rules)
	if err == nil {
		err = game.AutoPlay(round, game.StandOn(r.cfg.Rules.AutoStandOn))
	}
	if err != nil {
		r.cfg.Logger.Error("Failed to play round", "player", player, "error", err)
		writeRelayError(w, http.StatusInternalServerError, "round failed")
		return
	}

	balance = balance.Add(round.Payout())
	r.balances[player] = balance
	r.block++

	tx := txHash(seed, r.nonce)
	r.games[tx] = &relayGame{
		confirmAt: r.cfg.Clock.Now().Add(r.cfg.ConfirmDelay),
		receipt: Receipt{
			TxHash:  tx,
			Status:  StatusConfirmed,
			Block:   r.block,
			Player:  player,
			Bet:     play.Bet,
			Seed:    seed,
			Outcome: round.Outcome(),
			Payout:  round.Payout(),
			Balance: balance,
			Hand:    round.Player(),
			Dealer:  round.Dealer(),
		},
	}
	if play.RequestID != "" {
		r.requests[play.RequestID] = tx
	}

	r.cfg.Logger.Info("Game played", "tx", tx, "player", player, "outcome", round.Outcome(), "payout", round.Payout())
	writeRelayJSON(w, http.StatusAccepted, submitResponse{TxHash: tx})
}

func (r *Relay) handleReceipt(w http.ResponseWriter, req *http.Request) {
	tx := chi.URLParam(req, "tx")

	r.mu.Lock()
	g, ok := r.games[tx]
	r.mu.Unlock()
	if !ok {
		writeRelayError(w, http.StatusNotFound, "unknown transaction")
		return
	}

	if r.cfg.Clock.Now().Before(g.confirmAt) {
		writeRelayJSON(w, http.StatusOK, Receipt{
			TxHash: g.receipt.TxHash,
			Status: StatusPending,
			Player: g.receipt.Player,
			Bet:    g.receipt.Bet,
		})
		return
	}
	writeRelayJSON(w, http.StatusOK, g.receipt)
}

func (r *Relay) handleBalance(w http.ResponseWriter, req *http.Request) {
	player := strings.ToLower(chi.URLParam(req, "player"))

	r.mu.Lock()
	balance := r.balanceLocked(player)
	r.mu.Unlock()

	writeRelayJSON(w, http.StatusOK, balanceResponse{Player: player, Balance: balance})
}

func (r *Relay) balanceLocked(player string) decimal.Decimal {
	balance, ok := r.balances[player]
	if !ok {
		balance = r.cfg.StartingBalance
		r.balances[player] = balance
	}
	return balance
}

func txHash(seed blackjack.Seed, nonce uint64) string {
	h := sha256.New()
	h.Write(seed[:])
	_ = binary.Write(h, binary.BigEndian, nonce)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func writeRelayJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRelayError(w http.ResponseWriter, status int, msg string) {
	writeRelayJSON(w, status, errorResponse{Error: msg})
}
