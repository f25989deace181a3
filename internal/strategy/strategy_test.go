package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/game"
)

func view(player, up string) game.PlayerView {
	cards := blackjack.MustParseCards(player)
	return game.PlayerView{
		Player:   cards,
		DealerUp: blackjack.MustParseCards(up)[0],
		Score:    blackjack.Evaluate(cards),
	}
}

func decide(t *testing.T, s game.Strategy, player, up string) game.Decision {
	t.Helper()
	d, err := s.Decide(view(player, up))
	require.NoError(t, err)
	return d
}

func TestBasic(t *testing.T) {
	t.Parallel()

	s := Basic()
	tests := []struct {
		player string
		up     string
		want   game.Decision
	}{
		{"10s 7d", "As", game.DecisionStand},
		{"10s 6d", "10h", game.DecisionHit},
		{"10s 6d", "6h", game.DecisionStand},
		{"10s 2d", "3h", game.DecisionHit},
		{"10s 2d", "4h", game.DecisionStand},
		{"As 7d", "9h", game.DecisionHit},
		{"As 7d", "8h", game.DecisionStand},
		{"As 6d", "2h", game.DecisionHit},
		{"5s 6d", "10h", game.DecisionHit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decide(t, s, tt.player, tt.up), "%s vs %s", tt.player, tt.up)
	}
}

func TestMimicDealer(t *testing.T) {
	t.Parallel()

	s := MimicDealer(blackjack.DefaultRules())
	assert.Equal(t, game.DecisionHit, decide(t, s, "As 6d", "10h"))
	assert.Equal(t, game.DecisionStand, decide(t, s, "10s 7d", "10h"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	rules := blackjack.DefaultRules()
	for _, spec := range []string{"basic", "mimic", "stand:15"} {
		f, err := Parse(spec, rules)
		require.NoError(t, err, spec)
		s, err := f()
		require.NoError(t, err)
		assert.NotNil(t, s)
	}

	for _, spec := range []string{"", "yolo", "stand:x", "stand:40", "script:/does/not/exist.js"} {
		_, err := Parse(spec, rules)
		assert.Error(t, err, spec)
	}

	path := filepath.Join(t.TempDir(), "s.js")
	require.NoError(t, os.WriteFile(path, []byte(`function decide(h) { return h.total < 15 }`), 0o600))
	f, err := Parse("script:"+path, rules)
	require.NoError(t, err)
	s, err := f()
	require.NoError(t, err)
	assert.Equal(t, game.DecisionHit, decide(t, s, "10s 4d", "10h"))
}

func TestScript(t *testing.T) {
	t.Parallel()

	s, err := NewScript(`
		function decide(hand) {
			if (hand.soft && hand.total < 18) return "hit";
			if (hand.dealerValue >= 7 && hand.total < 17) return "hit";
			return hand.cards.length > 4 ? "stand" : (hand.total < 12 ? "hit" : "stand");
		}
	`)
	require.NoError(t, err)

	assert.Equal(t, game.DecisionHit, decide(t, s, "As 6d", "2h"))
	assert.Equal(t, game.DecisionHit, decide(t, s, "10s 6d", "Kh"))
	assert.Equal(t, game.DecisionStand, decide(t, s, "10s 6d", "5h"))
	assert.Equal(t, game.DecisionHit, decide(t, s, "5s 6d", "5h"))
}

func TestScriptErrors(t *testing.T) {
	t.Parallel()

	_, err := NewScript(`var x = 1;`)
	assert.ErrorContains(t, err, "decide() function is not defined")

	_, err = NewScript(`var decide = 3;`)
	assert.ErrorContains(t, err, "not a function")

	_, err = NewScript(`function decide( {`)
	assert.ErrorContains(t, err, "script execution error")

	s, err := NewScript(`function decide(h) { return 42 }`)
	require.NoError(t, err)
	_, err = s.Decide(view("10s 6d", "5h"))
	assert.Error(t, err)

	s, err = NewScript(`function decide(h) { throw new Error("boom") }`)
	require.NoError(t, err)
	_, err = s.Decide(view("10s 6d", "5h"))
	assert.ErrorContains(t, err, "boom")

	_, err = NewScript(`require("fs"); function decide() { return "hit" }`)
	assert.Error(t, err, "require is blocked")
}

func TestScriptTimeout(t *testing.T) {
	t.Parallel()

	s, err := NewScript(`function decide(h) { while (true) {} }`)
	require.NoError(t, err)
	_, err = s.Decide(view("10s 6d", "5h"))
	assert.ErrorContains(t, err, "timed out")
}

func TestScriptDrivesAutoPlay(t *testing.T) {
	t.Parallel()

	s, err := NewScript(`function decide(h) { return h.total < 17 }`)
	require.NoError(t, err)

	rules := blackjack.DefaultRules()
	for i := range 20 {
		var seed blackjack.Seed
		seed[0] = byte(i)
		r, err := game.NewRound(seed, decimal.NewFromInt(1), rules)
		require.NoError(t, err)
		require.NoError(t, game.AutoPlay(r, s))
		assert.True(t, r.IsFinished())
	}
}
