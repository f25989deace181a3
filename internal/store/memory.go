package store

import (
	"context"
	"sync"

	"github.com/lox/celojack/internal/stats"
)

// Memory is an in-process store. Nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	stats  map[string]stats.Stats
	rounds map[string][]Round
}

func NewMemory() *Memory {
	return &Memory{
		stats:  make(map[string]stats.Stats),
		rounds: make(map[string][]Round),
	}
}

func (m *Memory) Load(ctx context.Context, key string) (*stats.Stats, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stats[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) Save(ctx context.Context, key string, s stats.Stats) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[key] = s
	return nil
}

func (m *Memory) SaveRound(ctx context.Context, round Round) error {
	round, err := prepareRound(round)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[round.SessionID] = append(m.rounds[round.SessionID], round)
	return nil
}

func (m *Memory) ListRounds(ctx context.Context, sessionID string, limit int) ([]Round, error) {
	if err := ValidateKey(sessionID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.rounds[sessionID], limit), nil
}

func (m *Memory) Close() error {
	return nil
}
