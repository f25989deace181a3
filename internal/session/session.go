// Package session ties a player's rounds to settlement, stats and storage.
//
// A session has two modes. Free play deals locally from a committed server
// seed and keeps play credits. On-chain play hands the whole round to the
// contract and mirrors it locally from the chain's seed. Each mode has its
// own table and aggregator.
//
// Every intent is serialised by the session mutex. On-chain settlement is
// the one slow step: while it runs the session is in flight and every other
// intent fails with ErrSettlementPending.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/chain"
	"github.com/lox/celojack/internal/game"
	"github.com/lox/celojack/internal/gameid"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/stats"
	"github.com/lox/celojack/internal/store"
)

var (
	// ErrSettlementPending is returned while an on-chain settlement is in
	// flight or awaiting recovery
	ErrSettlementPending = errors.New("settlement pending")
	// ErrOnChainUnavailable is returned when no relay is configured
	ErrOnChainUnavailable = errors.New("on-chain play is not configured")
	// ErrWrongMode is returned for intents that do not apply to the
	// session's current mode
	ErrWrongMode = errors.New("intent not available in this mode")
	// ErrRoundInProgress is returned when an intent needs the table to be
	// between rounds
	ErrRoundInProgress = errors.New("round in progress")
	// ErrUnknownIntent is returned by Dispatch
	ErrUnknownIntent = errors.New("unknown intent")
)

// Intent names a request a client can make of a session
type Intent string

const (
	IntentNewGame       Intent = Intent(game.IntentNewGame)
	IntentHit           Intent = Intent(game.IntentHit)
	IntentStand         Intent = Intent(game.IntentStand)
	IntentPlayOnChain   Intent = "play_onchain"
	IntentSwitchMode    Intent = "switch_mode"
	IntentResetCredits  Intent = "reset_credits"
	IntentRecover       Intent = "recover"
	IntentSetClientSeed Intent = "set_client_seed"
)

// Request is an intent with its arguments
type Request struct {
	Intent     Intent          `json:"intent"`
	Bet        decimal.Decimal `json:"bet,omitempty"`
	Mode       settlement.Mode `json:"mode,omitempty"`
	ClientSeed string          `json:"client_seed,omitempty"`
}

// View is what a client sees after every intent
type View struct {
	SessionID  string              `json:"session_id"`
	Mode       settlement.Mode     `json:"mode"`
	Round      game.Snapshot       `json:"round"`
	Stats      stats.Stats         `json:"stats"`
	WinRate    float64             `json:"win_rate"`
	Pending    bool                `json:"pending"`
	PendingTx  string              `json:"pending_tx,omitempty"`
	Commitment string              `json:"commitment,omitempty"`
	ClientSeed string              `json:"client_seed"`
	Receipt    *settlement.Receipt `json:"receipt,omitempty"`
	Share      string              `json:"share,omitempty"`
	OnChain    bool                `json:"onchain_available"`
}

// Config configures a session
type Config struct {
	ID string
	// Player is the on-chain address used for contract play
	Player          string
	Rules           blackjack.Rules
	StartingCredits decimal.Decimal
	Mode            settlement.Mode
	Local           *settlement.Local
	// Contract is nil when on-chain play is not configured
	Contract *settlement.Contract
	Store    store.Store
	Clock    quartz.Clock
	Logger   *log.Logger
	AppURL   string
}

type modeState struct {
	table *game.Table
	agg   *stats.Aggregator
}

// Session is one player's game state
type Session struct {
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	mode     settlement.Mode
	modes    map[settlement.Mode]*modeState
	ticket   *settlement.Ticket
	receipt  *settlement.Receipt
	inFlight bool
	// pendingTx is an on-chain round that timed out before confirming
	pendingTx string
}

// New creates a session with fresh stats. Use Load to restore saved stats.
func New(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		cfg.ID = gameid.Generate()
	}
	if err := store.ValidateKey(cfg.ID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("session rules: %w", err)
	}
	if cfg.Mode == "" {
		cfg.Mode = settlement.ModeFree
	}
	if cfg.Mode == settlement.ModeOnChain && cfg.Contract == nil {
		return nil, ErrOnChainUnavailable
	}
	if cfg.Local == nil {
		cfg.Local = settlement.NewLocal(nil, "")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr)
	}
	logger := cfg.Logger.WithPrefix("session").With("session", cfg.ID)

	newTable := func() *game.Table {
		return game.NewTable(cfg.Rules, game.WithClock(cfg.Clock), game.WithLogger(logger))
	}

	return &Session{
		cfg:    cfg,
		logger: logger,
		mode:   cfg.Mode,
		modes: map[settlement.Mode]*modeState{
			settlement.ModeFree:    {table: newTable(), agg: stats.NewAggregator(cfg.StartingCredits)},
			settlement.ModeOnChain: {table: newTable(), agg: stats.NewOnChainAggregator(decimal.Zero)},
		},
	}, nil
}

func (s *Session) ID() string {
	return s.cfg.ID
}

// Load restores saved stats for both modes
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for mode, st := range s.modes {
		saved, err := s.cfg.Store.Load(ctx, s.key(mode))
		if err != nil {
			return fmt.Errorf("load %s stats: %w", mode, err)
		}
		if saved != nil {
			st.agg.Restore(*saved)
		}
	}
	return nil
}

func (s *Session) key(mode settlement.Mode) string {
	return s.cfg.ID + "-" + string(mode)
}

// Dispatch routes a request to the matching intent
func (s *Session) Dispatch(ctx context.Context, req Request) (View, error) {
	switch req.Intent {
	case IntentNewGame:
		return s.NewGame(ctx, req.Bet)
	case IntentHit:
		return s.Hit(ctx)
	case IntentStand:
		return s.Stand(ctx)
	case IntentPlayOnChain:
		return s.PlayOnChain(ctx, req.Bet)
	case IntentSwitchMode:
		return s.SwitchMode(ctx, req.Mode)
	case IntentResetCredits:
		return s.ResetCredits(ctx)
	case IntentRecover:
		return s.Recover(ctx)
	case IntentSetClientSeed:
		return s.SetClientSeed(req.ClientSeed)
	default:
		return s.View(), fmt.Errorf("%w %q", ErrUnknownIntent, req.Intent)
	}
}

// Mode returns the session's current settlement mode
func (s *Session) Mode() settlement.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// OnChainAvailable reports whether a contract relay is configured
func (s *Session) OnChainAvailable() bool {
	return s.cfg.Contract != nil
}

// Idle reports whether nothing is in flight or awaiting recovery
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.inFlight && s.pendingTx == ""
}

// View returns the current client view
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	st := s.modes[s.mode]
	v := View{
		SessionID:  s.cfg.ID,
		Mode:       s.mode,
		Round:      st.table.Snapshot(),
		Stats:      st.agg.Stats(),
		WinRate:    st.agg.WinRate(),
		Pending:    s.inFlight,
		PendingTx:  s.pendingTx,
		ClientSeed: s.cfg.Local.ClientSeed(),
		OnChain:    s.OnChainAvailable(),
	}
	if s.ticket != nil && s.mode == settlement.ModeFree {
		v.Commitment = s.ticket.Commitment
	}
	if s.receipt != nil && s.receipt.Mode == s.mode {
		v.Receipt = s.receipt
	}
	if v.Receipt != nil && v.Receipt.Mismatch && v.Round.Phase == game.Finished {
		// The chain's result is what was booked
		v.Round.Outcome = v.Receipt.Outcome
		v.Round.Payout = v.Receipt.Payout
		v.Round.Message = fmt.Sprintf("Settled on-chain as %s; local replay disagreed", v.Receipt.Outcome)
		return v
	}
	if round := st.table.Round(); round != nil && round.IsFinished() {
		v.Share = game.ShareText(round, v.Stats, s.cfg.AppURL)
	}
	return v
}

// guard rejects intents while a settlement is in flight
func (s *Session) guard() error {
	if s.inFlight {
		return ErrSettlementPending
	}
	return nil
}

// NewGame starts a round. In on-chain mode the contract plays the round.
func (s *Session) NewGame(ctx context.Context, bet decimal.Decimal) (View, error) {
	s.mu.Lock()
	if s.mode == settlement.ModeOnChain {
		s.mu.Unlock()
		return s.PlayOnChain(ctx, bet)
	}
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return s.viewLocked(), err
	}
	st := s.modes[settlement.ModeFree]
	if phase := st.table.Phase(); phase != game.Betting && phase != game.Finished {
		return s.viewLocked(), &game.TransitionError{Intent: game.IntentNewGame, Phase: phase}
	}
	if err := s.cfg.Rules.CheckBet(bet); err != nil {
		return s.viewLocked(), err
	}
	if err := st.agg.CanCover(bet); err != nil {
		return s.viewLocked(), err
	}

	ticket, err := s.cfg.Local.Open(ctx, settlement.Wager{SessionID: s.cfg.ID, Bet: bet})
	if err != nil {
		return s.viewLocked(), err
	}
	round, err := st.table.NewGame(ticket.Seed, bet)
	if err != nil {
		return s.viewLocked(), err
	}
	s.ticket = &ticket
	s.receipt = nil
	s.logger.Debug("Opened free round", "round", round.ID(), "commitment", ticket.Commitment, "nonce", ticket.Nonce)

	if round.IsFinished() {
		err := s.settleFreeLocked(ctx)
		return s.viewLocked(), err
	}
	return s.viewLocked(), nil
}

// Hit draws a card in the current free round
func (s *Session) Hit(ctx context.Context) (View, error) {
	return s.play(ctx, game.IntentHit, (*game.Table).Hit)
}

// Stand ends the player's turn in the current free round
func (s *Session) Stand(ctx context.Context) (View, error) {
	return s.play(ctx, game.IntentStand, (*game.Table).Stand)
}

func (s *Session) play(ctx context.Context, intent game.Intent, action func(*game.Table) error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return s.viewLocked(), err
	}
	if s.mode != settlement.ModeFree {
		return s.viewLocked(), fmt.Errorf("%s: %w", intent, ErrWrongMode)
	}
	st := s.modes[settlement.ModeFree]
	if err := action(st.table); err != nil {
		return s.viewLocked(), err
	}
	if st.table.Round().IsFinished() {
		err := s.settleFreeLocked(ctx)
		return s.viewLocked(), err
	}
	return s.viewLocked(), nil
}

// settleFreeLocked reveals the server seed and books the finished round
func (s *Session) settleFreeLocked(ctx context.Context) error {
	st := s.modes[settlement.ModeFree]
	round := st.table.Round()
	if s.ticket == nil {
		return fmt.Errorf("round %s finished without a ticket", round.ID())
	}

	receipt, err := s.cfg.Local.Settle(ctx, *s.ticket, settlement.Result{
		RoundID: round.ID(),
		Outcome: round.Outcome(),
		Payout:  round.Payout(),
	})
	if err != nil {
		return err
	}
	s.ticket = nil
	return s.bookLocked(ctx, settlement.ModeFree, round, receipt)
}

// bookLocked records a settled round in stats and storage
func (s *Session) bookLocked(ctx context.Context, mode settlement.Mode, round *game.Round, receipt settlement.Receipt) error {
	st := s.modes[mode]
	if err := st.agg.Record(receipt.Outcome, receipt.Payout); err != nil {
		return err
	}
	if receipt.Balance != nil {
		st.agg.SetCredits(*receipt.Balance)
	}
	s.receipt = &receipt

	s.logger.Info("Round settled",
		"mode", mode,
		"round", round.ID(),
		"outcome", receipt.Outcome,
		"payout", receipt.Payout,
		"credits", st.agg.Credits())

	saved := store.Round{
		ID:         round.ID(),
		SessionID:  s.cfg.ID,
		Mode:       string(mode),
		Bet:        round.Bet(),
		Outcome:    receipt.Outcome,
		Payout:     receipt.Payout,
		Player:     round.Player(),
		Dealer:     round.Dealer(),
		Seed:       round.Seed(),
		Commitment: receipt.Commitment,
		Reveal:     receipt.Reveal,
		TxHash:     receipt.TxHash,
		Mismatch:   receipt.Mismatch,
		StartedAt:  round.StartedAt(),
		FinishedAt: round.FinishedAt(),
	}
	if err := s.cfg.Store.SaveRound(ctx, saved); err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	if err := s.cfg.Store.Save(ctx, s.key(mode), st.agg.Stats()); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// PlayOnChain submits playGame() and mirrors the contract's round. The
// session lock is released while waiting for the chain.
func (s *Session) PlayOnChain(ctx context.Context, bet decimal.Decimal) (View, error) {
	s.mu.Lock()
	if err := s.checkOnChainLocked(bet); err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}
	s.inFlight = true
	s.receipt = nil
	wager := settlement.Wager{
		SessionID: s.cfg.ID,
		Player:    s.cfg.Player,
		Bet:       bet,
		RequestID: gameid.Generate(),
	}
	s.mu.Unlock()

	ticket, err := s.cfg.Contract.Open(ctx, wager)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeOnChainLocked(ctx, ticket, err)
}

func (s *Session) checkOnChainLocked(bet decimal.Decimal) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.cfg.Contract == nil {
		return ErrOnChainUnavailable
	}
	if s.mode != settlement.ModeOnChain {
		return fmt.Errorf("%s: %w", IntentPlayOnChain, ErrWrongMode)
	}
	if s.pendingTx != "" {
		return fmt.Errorf("transaction %s awaits recovery: %w", s.pendingTx, ErrSettlementPending)
	}
	// The contract enforces the balance; the local mirror may be stale
	return s.cfg.Rules.CheckBet(bet)
}

// Recover resumes an on-chain round that timed out before confirming
func (s *Session) Recover(ctx context.Context) (View, error) {
	s.mu.Lock()
	if err := s.guard(); err != nil {
		defer s.mu.Unlock()
		return s.viewLocked(), err
	}
	tx := s.pendingTx
	if tx == "" || s.cfg.Contract == nil {
		defer s.mu.Unlock()
		return s.viewLocked(), nil
	}
	s.inFlight = true
	s.mu.Unlock()

	s.logger.Info("Recovering pending transaction", "tx", tx)
	ticket, err := s.cfg.Contract.Resume(ctx, tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeOnChainLocked(ctx, ticket, err)
}

func (s *Session) completeOnChainLocked(ctx context.Context, ticket settlement.Ticket, err error) (View, error) {
	s.inFlight = false

	var pending *settlement.PendingError
	switch {
	case errors.As(err, &pending):
		s.pendingTx = pending.TxHash
		s.logger.Warn("On-chain round still pending", "tx", pending.TxHash)
		return s.viewLocked(), fmt.Errorf("%w: %w", ErrSettlementPending, err)
	case errors.Is(err, chain.ErrInsufficientFunds):
		return s.viewLocked(), fmt.Errorf("%w: %w", stats.ErrInsufficientCredits, err)
	case err != nil:
		s.logger.Error("On-chain play failed", "error", err)
		return s.viewLocked(), err
	}
	s.pendingTx = ""

	round, err := game.NewRound(ticket.Seed, ticket.Bet, s.cfg.Rules,
		game.WithRoundID(gameid.Generate()),
		game.WithNow(func() time.Time { return s.cfg.Clock.Now() }))
	if err != nil {
		return s.viewLocked(), err
	}
	if err := game.AutoPlay(round, game.StandOn(s.cfg.Rules.AutoStandOn)); err != nil {
		return s.viewLocked(), err
	}

	receipt, err := s.cfg.Contract.Settle(ctx, ticket, settlement.Result{
		RoundID: round.ID(),
		Outcome: round.Outcome(),
		Payout:  round.Payout(),
	})
	if err != nil {
		return s.viewLocked(), err
	}

	st := s.modes[settlement.ModeOnChain]
	if err := st.table.Restore(round); err != nil {
		return s.viewLocked(), err
	}
	err = s.bookLocked(ctx, settlement.ModeOnChain, round, receipt)
	return s.viewLocked(), err
}

// SwitchMode changes between free and on-chain play. Switching to on-chain
// refreshes the credit balance from the chain.
func (s *Session) SwitchMode(ctx context.Context, mode settlement.Mode) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return s.viewLocked(), err
	}
	if _, err := settlement.ParseMode(string(mode)); err != nil {
		return s.viewLocked(), err
	}
	if mode == settlement.ModeOnChain && s.cfg.Contract == nil {
		return s.viewLocked(), ErrOnChainUnavailable
	}
	if s.modes[s.mode].table.Phase() == game.Playing {
		return s.viewLocked(), fmt.Errorf("%s: %w", IntentSwitchMode, ErrRoundInProgress)
	}

	if mode == settlement.ModeOnChain {
		balance, err := s.cfg.Contract.Balance(ctx, s.cfg.Player)
		if err != nil {
			return s.viewLocked(), err
		}
		s.modes[settlement.ModeOnChain].agg.SetCredits(balance)
	}

	if s.mode != mode {
		s.logger.Info("Switched mode", "from", s.mode, "to", mode)
	}
	s.mode = mode
	return s.viewLocked(), nil
}

// ResetCredits restores free-play credits and clears free-play stats
func (s *Session) ResetCredits(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return s.viewLocked(), err
	}
	st := s.modes[s.mode]
	if st.table.Phase() == game.Playing {
		return s.viewLocked(), fmt.Errorf("%s: %w", IntentResetCredits, ErrRoundInProgress)
	}
	if err := st.agg.Reset(); err != nil {
		return s.viewLocked(), err
	}
	if err := s.cfg.Store.Save(ctx, s.key(s.mode), st.agg.Stats()); err != nil {
		return s.viewLocked(), fmt.Errorf("save stats: %w", err)
	}
	s.logger.Info("Credits reset", "credits", st.agg.Credits())
	return s.viewLocked(), nil
}

// SetClientSeed changes the client seed mixed into future free rounds
func (s *Session) SetClientSeed(seed string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(); err != nil {
		return s.viewLocked(), err
	}
	if s.ticket != nil {
		return s.viewLocked(), fmt.Errorf("%s: %w", IntentSetClientSeed, ErrRoundInProgress)
	}
	s.cfg.Local.SetClientSeed(seed)
	return s.viewLocked(), nil
}

// Rounds lists the session's settled rounds, newest first
func (s *Session) Rounds(ctx context.Context, limit int) ([]store.Round, error) {
	return s.cfg.Store.ListRounds(ctx, s.cfg.ID, limit)
}
