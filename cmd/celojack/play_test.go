package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/randutil"
	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/settlement"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(session.Config{
		ID:              "repl",
		Rules:           blackjack.DefaultRules(),
		StartingCredits: decimal.NewFromInt(100),
		Local:           settlement.NewLocal(randutil.NewReader(7), ""),
		Clock:           quartz.NewMock(t),
		Logger:          testLogger(),
	})
	require.NoError(t, err)
	return s
}

func TestREPLPlaysRounds(t *testing.T) {
	s := newTestSession(t)
	script := strings.Join([]string{
		"deal 5",
		"stand",
		"deal",
		"stand",
		"stats",
		"history",
		"quit",
		"deal",
	}, "\n")

	var out bytes.Buffer
	err := runREPL(t.Context(), strings.NewReader(script), &out, s, decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.Equal(t, 2, s.View().Stats.Rounds, "input after quit is ignored")
	assert.Contains(t, out.String(), "Rounds: 2")
	assert.Contains(t, out.String(), "free")
}

func TestREPLReportsErrors(t *testing.T) {
	s := newTestSession(t)
	script := "bogus\ndeal abc\nhit\nmode sideways\n"

	var out bytes.Buffer
	require.NoError(t, runREPL(t.Context(), strings.NewReader(script), &out, s, decimal.NewFromInt(1)))

	output := out.String()
	assert.Contains(t, output, `unknown command "bogus"`)
	assert.Contains(t, output, `invalid bet "abc"`)
	assert.Equal(t, 4, strings.Count(output, "error:"))
	assert.Zero(t, s.View().Stats.Rounds)
}

func TestREPLShareNeedsFinishedRound(t *testing.T) {
	s := newTestSession(t)

	var out bytes.Buffer
	require.NoError(t, runREPL(t.Context(), strings.NewReader("share\n"), &out, s, decimal.NewFromInt(1)))
	assert.Contains(t, out.String(), "Finish a round first")
}

func TestParseBet(t *testing.T) {
	fallback := decimal.NewFromInt(10)

	bet, err := parseBet("", fallback)
	require.NoError(t, err)
	assert.True(t, bet.Equal(fallback))

	bet, err = parseBet("2.5", fallback)
	require.NoError(t, err)
	assert.Equal(t, "2.5", bet.String())

	_, err = parseBet("ten", fallback)
	assert.Error(t, err)
}

func TestRenderCardsHidden(t *testing.T) {
	cards, err := blackjack.ParseCards("As 10d")
	require.NoError(t, err)

	shown := renderCards(cards, false)
	assert.NotContains(t, shown, "??")
	assert.Contains(t, shown, "10")

	hidden := renderCards(cards[:1], true)
	assert.True(t, strings.HasSuffix(hidden, "??"))
}
