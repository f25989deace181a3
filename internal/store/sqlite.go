package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/stats"
)

// SQLite implements Store on an SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path. Call Migrate before
// use.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate creates tables and indexes. It is safe to run repeatedly.
func (s *SQLite) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS stats (
			key TEXT PRIMARY KEY,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			pushes INTEGER NOT NULL DEFAULT 0,
			blackjacks INTEGER NOT NULL DEFAULT 0,
			rounds INTEGER NOT NULL DEFAULT 0,
			credits TEXT NOT NULL,
			net TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			bet TEXT NOT NULL,
			outcome TEXT NOT NULL,
			payout TEXT NOT NULL,
			player TEXT NOT NULL,
			dealer TEXT NOT NULL,
			seed TEXT NOT NULL,
			commitment TEXT NOT NULL DEFAULT '',
			reveal_json TEXT,
			tx_hash TEXT NOT NULL DEFAULT '',
			mismatch INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_session ON rounds(session_id, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_tx ON rounds(tx_hash)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, key string) (*stats.Stats, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var st stats.Stats
	var credits, net string
	err := s.db.QueryRowContext(ctx, `
		SELECT wins, losses, pushes, blackjacks, rounds, credits, net
		FROM stats WHERE key = ?`, key).
		Scan(&st.Wins, &st.Losses, &st.Pushes, &st.Blackjacks, &st.Rounds, &credits, &net)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats %s: %w", key, err)
	}

	if st.Credits, err = decimal.NewFromString(credits); err != nil {
		return nil, fmt.Errorf("stats %s: bad credits %q: %w", key, credits, err)
	}
	if st.Net, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("stats %s: bad net %q: %w", key, net, err)
	}
	return &st, nil
}

func (s *SQLite) Save(ctx context.Context, key string, st stats.Stats) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (key, wins, losses, pushes, blackjacks, rounds, credits, net, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			wins = excluded.wins,
			losses = excluded.losses,
			pushes = excluded.pushes,
			blackjacks = excluded.blackjacks,
			rounds = excluded.rounds,
			credits = excluded.credits,
			net = excluded.net,
			updated_at = CURRENT_TIMESTAMP`,
		key, st.Wins, st.Losses, st.Pushes, st.Blackjacks, st.Rounds, st.Credits.String(), st.Net.String())
	if err != nil {
		return fmt.Errorf("failed to save stats %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) SaveRound(ctx context.Context, round Round) error {
	round, err := prepareRound(round)
	if err != nil {
		return err
	}

	var reveal sql.NullString
	if round.Reveal != nil {
		data, err := json.Marshal(round.Reveal)
		if err != nil {
			return fmt.Errorf("failed to marshal reveal: %w", err)
		}
		reveal = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rounds (id, session_id, mode, bet, outcome, payout, player, dealer,
			seed, commitment, reveal_json, tx_hash, mismatch, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		round.ID, round.SessionID, round.Mode, round.Bet.String(), round.Outcome.String(),
		round.Payout.String(), cardCodes(round.Player), cardCodes(round.Dealer),
		round.Seed.String(), round.Commitment, reveal, round.TxHash, round.Mismatch,
		formatTime(round.StartedAt), formatTime(round.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to save round %s: %w", round.ID, err)
	}
	return nil
}

func (s *SQLite) ListRounds(ctx context.Context, sessionID string, limit int) ([]Round, error) {
	if err := ValidateKey(sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, mode, bet, outcome, payout, player, dealer,
			seed, commitment, reveal_json, tx_hash, mismatch, started_at, finished_at
		FROM rounds WHERE session_id = ?
		ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}
	return rounds, nil
}

func scanRound(rows *sql.Rows) (Round, error) {
	var (
		r                                    Round
		bet, outcome, payout, player, dealer string
		seed, startedAt, finishedAt          string
		reveal                               sql.NullString
	)
	if err := rows.Scan(&r.ID, &r.SessionID, &r.Mode, &bet, &outcome, &payout, &player, &dealer,
		&seed, &r.Commitment, &reveal, &r.TxHash, &r.Mismatch, &startedAt, &finishedAt); err != nil {
		return r, fmt.Errorf("failed to scan round: %w", err)
	}

	var err error
	if r.Bet, err = decimal.NewFromString(bet); err != nil {
		return r, fmt.Errorf("round %s: bad bet: %w", r.ID, err)
	}
	if r.Payout, err = decimal.NewFromString(payout); err != nil {
		return r, fmt.Errorf("round %s: bad payout: %w", r.ID, err)
	}
	if r.Outcome, err = blackjack.ParseOutcome(outcome); err != nil {
		return r, fmt.Errorf("round %s: %w", r.ID, err)
	}
	if r.Player, err = blackjack.ParseCards(player); err != nil {
		return r, fmt.Errorf("round %s: player cards: %w", r.ID, err)
	}
	if r.Dealer, err = blackjack.ParseCards(dealer); err != nil {
		return r, fmt.Errorf("round %s: dealer cards: %w", r.ID, err)
	}
	if r.Seed, err = blackjack.ParseSeed(seed); err != nil {
		return r, fmt.Errorf("round %s: %w", r.ID, err)
	}
	if reveal.Valid {
		r.Reveal = &fairness.Reveal{}
		if err := json.Unmarshal([]byte(reveal.String), r.Reveal); err != nil {
			return r, fmt.Errorf("round %s: bad reveal: %w", r.ID, err)
		}
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return r, fmt.Errorf("round %s: %w", r.ID, err)
	}
	if r.FinishedAt, err = parseTime(finishedAt); err != nil {
		return r, fmt.Errorf("round %s: %w", r.ID, err)
	}
	return r, nil
}

func cardCodes(cards []blackjack.Card) string {
	codes := make([]string, len(cards))
	for i, c := range cards {
		codes[i] = c.Code()
	}
	return strings.Join(codes, " ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
