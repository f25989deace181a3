package blackjack

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		player string
		dealer string
		want   Outcome
	}{
		{"player bust loses even if dealer busts", "10s 9d 5c", "10h 6d 8c", OutcomeLose},
		{"both blackjack push", "As Kd", "Ah Qc", OutcomePush},
		{"player blackjack", "As Kd", "10h 9c", OutcomeBlackjack},
		{"player blackjack beats dealer 21", "As Kd", "7h 7c 7d", OutcomeBlackjack},
		{"dealer blackjack", "10s 9d", "Ah Qc", OutcomeLose},
		{"dealer blackjack beats three card 21", "7s 7h 7d", "Ah Qc", OutcomeLose},
		{"dealer bust", "10s 2d", "10h 6d 8c", OutcomeWin},
		{"higher total wins", "10s Qd", "10h 9c", OutcomeWin},
		{"lower total loses", "10s 8d", "10h 9c", OutcomeLose},
		{"equal totals push", "10s 8d", "9h 9c", OutcomePush},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(MustParseCards(tt.player), MustParseCards(tt.dealer))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	assert.True(t, OutcomeWin.IsWin())
	assert.True(t, OutcomeBlackjack.IsWin())
	assert.False(t, OutcomePush.IsWin())
	assert.False(t, OutcomeLose.IsWin())
	assert.False(t, OutcomeNone.IsFinal())
	assert.True(t, OutcomePush.IsFinal())

	for _, o := range []Outcome{OutcomeWin, OutcomeLose, OutcomePush, OutcomeBlackjack} {
		parsed, err := ParseOutcome(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, parsed)
	}
	_, err := ParseOutcome("surrender")
	assert.Error(t, err)
}

func TestOutcomeJSON(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Outcome Outcome `json:"outcome"`
	}

	data, err := json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":null}`, string(data))

	data, err = json.Marshal(wrapper{Outcome: OutcomeBlackjack})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"blackjack"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"outcome":"push"}`), &w))
	assert.Equal(t, OutcomePush, w.Outcome)
}
