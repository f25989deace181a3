package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/settlement"
)

var testSeed = strings.Repeat("ab", 32)

func TestVerifyClaimParsing(t *testing.T) {
	tests := []struct {
		name    string
		cmd     VerifyCmd
		wantErr string
	}{
		{"seed only", VerifyCmd{Seed: testSeed, Bet: "1"}, ""},
		{"server seed", VerifyCmd{ServerSeed: testSeed, ClientSeed: "x", Nonce: 3, Bet: "1"}, ""},
		{"nothing", VerifyCmd{Bet: "1"}, "give --seed or --server-seed"},
		{"bad seed", VerifyCmd{Seed: "zz", Bet: "1"}, "invalid seed"},
		{"commitment alone", VerifyCmd{Seed: testSeed, Commitment: "abc", Bet: "1"}, "needs --server-seed"},
		{"bad cards", VerifyCmd{Seed: testSeed, Player: "Xx", Bet: "1"}, "player cards"},
		{"bad outcome", VerifyCmd{Seed: testSeed, Outcome: "maybe", Bet: "1"}, "invalid outcome"},
		{"bad bet", VerifyCmd{Seed: testSeed, Bet: "lots"}, "invalid bet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim, err := tt.cmd.claim()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.cmd.ServerSeed != "" {
				require.NotNil(t, claim.Reveal)
				assert.Equal(t, uint64(3), claim.Reveal.Nonce)
			}
		})
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	rules := blackjack.DefaultRules()
	claim, err := (&VerifyCmd{Seed: testSeed, Bet: "1"}).claim()
	require.NoError(t, err)

	v, err := settlement.Verify(claim, rules)
	require.NoError(t, err)

	var out bytes.Buffer
	printVerification(&out, v, nil)
	assert.Contains(t, out.String(), testSeed)
	assert.Contains(t, out.String(), "Verified")

	// Claiming any other outcome must be flagged
	wrong := blackjack.OutcomeLose
	if v.Outcome == blackjack.OutcomeLose {
		wrong = blackjack.OutcomeWin
	}
	claim.Outcome = wrong
	v, err = settlement.Verify(claim, rules)
	require.ErrorIs(t, err, settlement.ErrOutcomeMismatch)

	out.Reset()
	require.NoError(t, writeVerificationJSON(&out, v, err))
	var decoded struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.False(t, decoded.Valid)
	assert.Contains(t, decoded.Error, "claimed")
}
