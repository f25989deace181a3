package simulator

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/game"
	"github.com/lox/celojack/internal/strategy"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.WarnLevel})
}

func basicFactory() (game.Strategy, error) {
	return strategy.Basic(), nil
}

func TestNew(t *testing.T) {
	simulator := New(Config{Rounds: 10, Strategy: basicFactory, Logger: testLogger()})
	require.NotNil(t, simulator)
	assert.Equal(t, 1, simulator.config.Workers, "workers default to 1")
}

func TestRunDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	run := func(workers int) (float64, [5]int) {
		sim := New(Config{
			Rounds:   400,
			Strategy: basicFactory,
			Rules:    blackjack.DefaultRules(),
			Seed:     12345,
			Workers:  workers,
			Logger:   testLogger(),
		})
		stats, err := sim.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 400, stats.Rounds)

		var counts [5]int
		for i, b := range stats.ByOutcome {
			counts[i] = b.Rounds
		}
		return stats.SumNet, counts
	}

	net1, counts1 := run(1)
	net4, counts4 := run(4)
	assert.InDelta(t, net1, net4, 1e-9)
	assert.Equal(t, counts1, counts4)
}

func TestRunHouseEdgeIsPlausible(t *testing.T) {
	t.Parallel()

	sim := New(Config{
		Rounds:   20000,
		Strategy: basicFactory,
		Rules:    blackjack.DefaultRules(),
		Seed:     7,
		Workers:  4,
		Logger:   testLogger(),
	})
	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	// Hit/stand-only basic strategy on one deck loses a few percent; a
	// broken shuffle or payout rule shows up as a large swing either way.
	assert.Greater(t, stats.Mean(), -0.15)
	assert.Less(t, stats.Mean(), 0.05)
	assert.Greater(t, stats.Rate(blackjack.OutcomeBlackjack), 2.0)
	assert.Less(t, stats.Rate(blackjack.OutcomeBlackjack), 7.0)
}

func TestRunScriptStrategy(t *testing.T) {
	t.Parallel()

	factory := func() (game.Strategy, error) {
		return strategy.NewScript(`function decide(h) { return h.total < 15 }`)
	}
	sim := New(Config{Rounds: 50, Strategy: factory, Rules: blackjack.DefaultRules(), Workers: 2, Logger: testLogger()})
	stats, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Rounds)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Rounds: 0, Strategy: basicFactory}).Run(context.Background())
	assert.Error(t, err)

	_, err = New(Config{Rounds: 5}).Run(context.Background())
	assert.Error(t, err)

	broken := func() (game.Strategy, error) {
		return game.StrategyFunc(func(game.PlayerView) (game.Decision, error) {
			return game.DecisionStand, assert.AnError
		}), nil
	}
	_, err = New(Config{Rounds: 5, Strategy: broken, Rules: blackjack.DefaultRules(), Logger: testLogger()}).Run(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(Config{Rounds: 5, Strategy: basicFactory, Rules: blackjack.DefaultRules(), Timeout: time.Second, Logger: testLogger()}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintSummary(t *testing.T) {
	sim := New(Config{Rounds: 20, Strategy: basicFactory, Rules: blackjack.DefaultRules(), Logger: testLogger()})
	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintSummary(&buf, stats, "basic")
	assert.Contains(t, buf.String(), "FINAL RESULTS for basic")
	assert.Contains(t, buf.String(), "Rounds played: 20")
	assert.Contains(t, buf.String(), "House edge")
}
