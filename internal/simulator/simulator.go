package simulator

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/game"
	"github.com/lox/celojack/internal/randutil"
	"github.com/lox/celojack/internal/statistics"
	"github.com/lox/celojack/internal/strategy"
)

// clientSeed is mixed into every simulated round so simulated decks never
// coincide with live ones derived from the same server seed.
const clientSeed = "simulator"

// Config holds configuration for running simulations
type Config struct {
	Rounds   int
	Strategy strategy.Factory
	Rules    blackjack.Rules
	Seed     int64
	Workers  int
	Timeout  time.Duration
	Logger   *log.Logger
}

// Simulator plays many automated rounds and collects statistics
type Simulator struct {
	config Config
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr)
	}
	return &Simulator{config: config}
}

// Run executes the simulation. Round i is always dealt from the same seed
// for a given Config.Seed, whatever the worker count.
func (s *Simulator) Run(ctx context.Context) (*statistics.Statistics, error) {
	if s.config.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", s.config.Rounds)
	}
	if s.config.Strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}

	serverSeed, err := fairness.NewServerSeedFrom(randutil.NewReader(s.config.Seed))
	if err != nil {
		return nil, err
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	workers := min(s.config.Workers, s.config.Rounds)
	partials := make([]*statistics.Statistics, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			strat, err := s.config.Strategy()
			if err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}

			stats := &statistics.Statistics{}
			for i := w; i < s.config.Rounds; i += workers {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("simulation stopped after %d rounds: %w", stats.Rounds, err)
				}
				seed := fairness.DeriveSeed(serverSeed, clientSeed, uint64(i))
				result, err := s.playRound(seed, strat)
				if err != nil {
					return fmt.Errorf("round %d (seed %s): %w", i, seed, err)
				}
				stats.Add(result)
			}
			partials[w] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := &statistics.Statistics{}
	for _, p := range partials {
		total.Merge(p)
	}

	if err := total.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}

	s.config.Logger.Debug("Simulation complete", "rounds", total.Rounds, "mean", total.Mean())
	return total, nil
}

var unitBet = decimal.NewFromInt(1)

// playRound plays a single round with a unit bet
func (s *Simulator) playRound(seed blackjack.Seed, strat game.Strategy) (statistics.RoundResult, error) {
	round, err := game.NewRound(seed, unitBet, s.config.Rules)
	if err != nil {
		return statistics.RoundResult{}, err
	}
	if err := game.AutoPlay(round, strat); err != nil {
		return statistics.RoundResult{}, err
	}

	net, _ := round.Payout().Float64()
	player := round.Player()
	return statistics.RoundResult{
		Net:         net,
		Seed:        seed,
		Outcome:     round.Outcome(),
		PlayerCards: len(player),
		PlayerBust:  blackjack.Evaluate(player).Bust,
		DealerBust:  blackjack.Evaluate(round.Dealer()).Bust,
	}, nil
}

// PrintSummary writes a summary of simulation results
func PrintSummary(w io.Writer, stats *statistics.Statistics, strategyName string) {
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== FINAL RESULTS for %s ===\n", strategyName)
	fmt.Fprintf(w, "Rounds played: %d\n", stats.Rounds)

	fmt.Fprintf(w, "\n=== STATISTICAL RESULTS ===\n")
	fmt.Fprintf(w, "Mean: %.4f bets/round\n", stats.Mean())
	fmt.Fprintf(w, "House edge: %.2f%%\n", stats.HouseEdge())
	fmt.Fprintf(w, "Std Dev: %.4f bets\n", stats.StdDev())
	fmt.Fprintf(w, "Std Error: %.4f bets\n", stats.StdError())
	fmt.Fprintf(w, "95%% CI: [%.4f, %.4f] bets/round\n", low, high)

	fmt.Fprintf(w, "\n=== OUTCOMES ===\n")
	for _, o := range []blackjack.Outcome{
		blackjack.OutcomeWin,
		blackjack.OutcomeBlackjack,
		blackjack.OutcomePush,
		blackjack.OutcomeLose,
	} {
		b := stats.ByOutcome[o]
		fmt.Fprintf(w, "%-10s %7d (%.2f%%) net %.1f\n", o, b.Rounds, stats.Rate(o), b.SumNet)
	}
	fmt.Fprintf(w, "Player busts: %d, dealer busts: %d, most cards held: %d\n",
		stats.PlayerBusts, stats.DealerBusts, stats.MaxCards)
}
