package store

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/lox/celojack/internal/fileutil"
	"github.com/lox/celojack/internal/stats"
)

// File keeps one JSON document per key under a directory. Writes go through
// an atomic rename so a crash never leaves a truncated file.
type File struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) statsPath(key string) string {
	return filepath.Join(f.dir, "stats", key+".json")
}

func (f *File) roundsPath(sessionID string) string {
	return filepath.Join(f.dir, "rounds", sessionID+".json")
}

func (f *File) Load(ctx context.Context, key string) (*stats.Stats, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var s stats.Stats
	found, err := fileutil.ReadJSON(f.statsPath(key), &s)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

func (f *File) Save(ctx context.Context, key string, s stats.Stats) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fileutil.WriteJSONAtomic(f.statsPath(key), s, 0o600)
}

func (f *File) SaveRound(ctx context.Context, round Round) error {
	round, err := prepareRound(round)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.roundsPath(round.SessionID)
	var rounds []Round
	if _, err := fileutil.ReadJSON(path, &rounds); err != nil {
		return err
	}
	rounds = append(rounds, round)
	return fileutil.WriteJSONAtomic(path, rounds, 0o600)
}

func (f *File) ListRounds(ctx context.Context, sessionID string, limit int) ([]Round, error) {
	if err := ValidateKey(sessionID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var rounds []Round
	if _, err := fileutil.ReadJSON(f.roundsPath(sessionID), &rounds); err != nil {
		return nil, err
	}
	return newestFirst(rounds, limit), nil
}

func (f *File) Close() error {
	return nil
}
