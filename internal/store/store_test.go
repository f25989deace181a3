package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/stats"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"file": func(t *testing.T) Store {
			s, err := Open(KindFile, t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := Open(KindSQLite, filepath.Join(t.TempDir(), "celojack.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func sampleRound(session string, n int) Round {
	started := time.Date(2026, 3, 1, 12, 0, n, 0, time.UTC)
	return Round{
		ID:         fmt.Sprintf("round-%d", n),
		SessionID:  session,
		Mode:       "free",
		Bet:        decimal.NewFromInt(10),
		Outcome:    blackjack.OutcomeBlackjack,
		Payout:     decimal.RequireFromString("15"),
		Player:     blackjack.MustParseCards("As Kd"),
		Dealer:     blackjack.MustParseCards("9c 7h"),
		Seed:       blackjack.Seed{byte(n), 2, 3},
		Commitment: "abcd",
		Reveal:     &fairness.Reveal{ServerSeed: blackjack.Seed{9}, ClientSeed: "c", Nonce: uint64(n)},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

func TestStores(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			t.Run("load missing", func(t *testing.T) {
				s := open(t)
				got, err := s.Load(ctx, "nobody-free")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("save and load stats", func(t *testing.T) {
				s := open(t)
				want := stats.Stats{
					Wins: 3, Losses: 2, Pushes: 1, Blackjacks: 1, Rounds: 7,
					Credits: decimal.RequireFromString("1012.5"),
					Net:     decimal.RequireFromString("12.5"),
				}
				require.NoError(t, s.Save(ctx, "sess-free", want))

				got, err := s.Load(ctx, "sess-free")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, want.Wins, got.Wins)
				assert.Equal(t, want.Rounds, got.Rounds)
				assert.True(t, want.Credits.Equal(got.Credits))
				assert.True(t, want.Net.Equal(got.Net))

				want.Rounds = 8
				require.NoError(t, s.Save(ctx, "sess-free", want))
				got, err = s.Load(ctx, "sess-free")
				require.NoError(t, err)
				assert.Equal(t, 8, got.Rounds, "save overwrites")
			})

			t.Run("rounds newest first", func(t *testing.T) {
				s := open(t)
				for i := 1; i <= 3; i++ {
					require.NoError(t, s.SaveRound(ctx, sampleRound("sess", i)))
				}
				require.NoError(t, s.SaveRound(ctx, sampleRound("other", 9)))

				all, err := s.ListRounds(ctx, "sess", 0)
				require.NoError(t, err)
				require.Len(t, all, 3)
				assert.Equal(t, "round-3", all[0].ID)
				assert.Equal(t, "round-1", all[2].ID)

				limited, err := s.ListRounds(ctx, "sess", 2)
				require.NoError(t, err)
				require.Len(t, limited, 2)
				assert.Equal(t, "round-3", limited[0].ID)

				want := sampleRound("sess", 3)
				got := all[0]
				assert.Equal(t, want.Player, got.Player)
				assert.Equal(t, want.Dealer, got.Dealer)
				assert.Equal(t, want.Seed, got.Seed)
				assert.Equal(t, want.Outcome, got.Outcome)
				assert.True(t, want.Payout.Equal(got.Payout))
				assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
				require.NotNil(t, got.Reveal)
				assert.Equal(t, *want.Reveal, *got.Reveal)

				none, err := s.ListRounds(ctx, "empty", 0)
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("round without id gets one", func(t *testing.T) {
				s := open(t)
				r := sampleRound("sess", 1)
				r.ID = ""
				r.Reveal = nil
				r.TxHash = "0xabc"
				require.NoError(t, s.SaveRound(ctx, r))

				rounds, err := s.ListRounds(ctx, "sess", 1)
				require.NoError(t, err)
				require.Len(t, rounds, 1)
				assert.NotEmpty(t, rounds[0].ID)
				assert.Nil(t, rounds[0].Reveal)
				assert.Equal(t, "0xabc", rounds[0].TxHash)
			})

			t.Run("rejects bad input", func(t *testing.T) {
				s := open(t)
				_, err := s.Load(ctx, "../etc/passwd")
				assert.ErrorIs(t, err, ErrInvalidKey)
				assert.ErrorIs(t, s.Save(ctx, "", stats.Stats{}), ErrInvalidKey)

				unfinished := sampleRound("sess", 1)
				unfinished.Outcome = blackjack.OutcomeNone
				assert.Error(t, s.SaveRound(ctx, unfinished))
			})
		})
	}
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	for range 3 {
		require.NoError(t, db.Migrate())
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	require.NoError(t, NewFile(dir).Save(ctx, "sess-free", stats.Stats{Rounds: 4, Credits: decimal.NewFromInt(990)}))
	got, err := NewFile(dir).Load(ctx, "sess-free")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Rounds)

	_, err = os.Stat(filepath.Join(dir, "stats", "sess-free.json"))
	assert.NoError(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(KindMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(KindFile, "")
	assert.Error(t, err)
	_, err = Open(KindSQLite, "")
	assert.Error(t, err)
	_, err = Open("redis", "x")
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"abc", "01JABCDEF-free", "a.b_c"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", "../x", "a/b", ".hidden", "with space"} {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}
