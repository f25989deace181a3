package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/gameid"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/store"
)

// ManagerConfig holds what every session of a server shares
type ManagerConfig struct {
	Rules           blackjack.Rules
	StartingCredits decimal.Decimal
	DefaultMode     settlement.Mode
	ClientSeed      string
	// Entropy feeds free-play server seeds. Defaults to crypto/rand.
	Entropy  io.Reader
	Contract *settlement.Contract
	Store    store.Store
	Clock    quartz.Clock
	Logger   *log.Logger
	AppURL   string
}

// Manager owns the live sessions of a server
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
	// refs counts Open calls not yet matched by Release
	refs map[string]int
}

// NewManager creates a session manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
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
	if cfg.DefaultMode == "" || (cfg.DefaultMode == settlement.ModeOnChain && cfg.Contract == nil) {
		cfg.DefaultMode = settlement.ModeFree
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session), refs: make(map[string]int)}
}

// Rules returns the house rules shared by all sessions
func (m *Manager) Rules() blackjack.Rules {
	return m.cfg.Rules
}

// Store returns the backing store
func (m *Manager) Store() store.Store {
	return m.cfg.Store
}

// Open returns the live session with id, loading it from the store if it
// is not in memory. An empty id creates a new session. Each Open holds a
// reference until Release.
func (m *Manager) Open(ctx context.Context, id, player string) (*Session, error) {
	if id == "" {
		id = gameid.Generate()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		m.refs[id]++
		return s, nil
	}

	s, err := New(Config{
		ID:              id,
		Player:          player,
		Rules:           m.cfg.Rules,
		StartingCredits: m.cfg.StartingCredits,
		Mode:            settlement.ModeFree,
		Local:           settlement.NewLocal(m.cfg.Entropy, m.cfg.ClientSeed),
		Contract:        m.cfg.Contract,
		Store:           m.cfg.Store,
		Clock:           m.cfg.Clock,
		Logger:          m.cfg.Logger,
		AppURL:          m.cfg.AppURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	if m.cfg.DefaultMode == settlement.ModeOnChain && player != "" {
		// Switching syncs the on-chain balance
		if _, err := s.SwitchMode(ctx, settlement.ModeOnChain); err != nil {
			m.cfg.Logger.Warn("Starting session in free mode", "session", id, "error", err)
		}
	}

	m.sessions[id] = s
	m.refs[id]++
	m.cfg.Logger.Info("Session opened", "session", id, "mode", s.View().Mode)
	return s, nil
}

// Get returns a live session
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Release drops a reference taken by Open. The session leaves memory once
// nothing references it and it has nothing left to settle. It reports
// whether the session was dropped.
func (m *Manager) Release(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs[id] > 1 {
		m.refs[id]--
		return false
	}
	delete(m.refs, id)

	s, ok := m.sessions[id]
	if !ok || !s.Idle() {
		return false
	}
	delete(m.sessions, id)
	m.cfg.Logger.Debug("Session released", "session", id)
	return true
}

// Close drops a session from memory whatever its references. Its stats
// stay in the store.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.refs, id)
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Rounds lists stored rounds for a session whether or not it is live
func (m *Manager) Rounds(ctx context.Context, id string, limit int) ([]store.Round, error) {
	if err := store.ValidateKey(id); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return m.cfg.Store.ListRounds(ctx, id, limit)
}
