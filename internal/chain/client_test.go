package chain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/game"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type fixture struct {
	relay  *Relay
	client *Client
	clock  *quartz.Mock
}

func newFixture(t *testing.T, relayCfg RelayConfig, clientCfg Config) *fixture {
	t.Helper()

	clock := quartz.NewMock(t)
	relayCfg.Rules = blackjack.DefaultRules()
	relayCfg.Entropy = bytes.NewReader(bytes.Repeat([]byte{7}, 32))
	relayCfg.Clock = clock
	relayCfg.Logger = testLogger()
	if relayCfg.StartingBalance.IsZero() {
		relayCfg.StartingBalance = decimal.NewFromInt(100)
	}

	relay, err := NewRelay(relayCfg)
	require.NoError(t, err)
	server := httptest.NewServer(relay)
	t.Cleanup(server.Close)

	clientCfg.Endpoint = server.URL
	clientCfg.Clock = clock
	clientCfg.Logger = testLogger()
	return &fixture{relay: relay, client: NewClient(clientCfg), clock: clock}
}

// runAdvancing runs fn while stepping the mock clock until fn returns.
// Every timer the client creates is a whole number of steps long.
func runAdvancing[T any](t *testing.T, clock *quartz.Mock, step time.Duration, fn func() (T, error)) (T, error) {
	t.Helper()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	for {
		select {
		case r := <-done:
			return r.v, r.err
		case <-time.After(5 * time.Millisecond):
			clock.Advance(step).MustWait(t.Context())
		}
	}
}

func TestPlayGameAndWait(t *testing.T) {
	f := newFixture(t, RelayConfig{}, Config{})
	ctx := t.Context()
	bet := decimal.NewFromInt(10)

	tx, err := f.client.PlayGame(ctx, PlayRequest{RequestID: "r1", Player: "0xABC", Bet: bet})
	require.NoError(t, err)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, tx)

	receipt, err := f.client.WaitForReceipt(ctx, tx)
	require.NoError(t, err)
	assert.True(t, receipt.Confirmed())
	assert.Equal(t, "0xabc", receipt.Player)
	assert.True(t, receipt.Outcome.IsFinal())
	assert.True(t, receipt.Balance.Equal(decimal.NewFromInt(100).Add(receipt.Payout)))

	// The seed alone reproduces the contract's round
	round, err := game.NewRound(receipt.Seed, bet, blackjack.DefaultRules())
	require.NoError(t, err)
	require.NoError(t, game.AutoPlay(round, game.StandOn(blackjack.DefaultRules().AutoStandOn)))
	assert.Equal(t, receipt.Outcome, round.Outcome())
	assert.True(t, receipt.Payout.Equal(round.Payout()))
	assert.Equal(t, receipt.Hand, round.Player())
	assert.Equal(t, receipt.Dealer, round.Dealer())

	balance, err := f.client.Balance(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, balance.Equal(receipt.Balance))
}

func TestPlayGameIsIdempotent(t *testing.T) {
	f := newFixture(t, RelayConfig{}, Config{})
	ctx := t.Context()
	req := PlayRequest{RequestID: "same", Player: "p1", Bet: decimal.NewFromInt(5)}

	tx1, err := f.client.PlayGame(ctx, req)
	require.NoError(t, err)
	tx2, err := f.client.PlayGame(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, tx1, tx2)

	receipt, err := f.client.Receipt(ctx, tx1)
	require.NoError(t, err)
	balance, err := f.client.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(receipt.Balance), "bet settled once")
}

func TestPlayGameRetriesTransientErrors(t *testing.T) {
	f := newFixture(t, RelayConfig{}, Config{MaxRetries: 3, RetryDelay: time.Second})
	f.relay.FailNext(http.StatusServiceUnavailable, 2)

	tx, err := runAdvancing(t, f.clock, time.Second, func() (string, error) {
		return f.client.PlayGame(context.Background(), PlayRequest{RequestID: "r", Player: "p", Bet: decimal.NewFromInt(1)})
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tx)
}

func TestPlayGameMaxRetriesExceeded(t *testing.T) {
	f := newFixture(t, RelayConfig{}, Config{MaxRetries: 2, RetryDelay: time.Second})
	f.relay.FailNext(http.StatusInternalServerError, 10)

	_, err := runAdvancing(t, f.clock, time.Second, func() (string, error) {
		return f.client.PlayGame(context.Background(), PlayRequest{Player: "p", Bet: decimal.NewFromInt(1)})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestWaitForReceiptPendingThenConfirmed(t *testing.T) {
	f := newFixture(t, RelayConfig{ConfirmDelay: 3 * time.Second}, Config{PollInterval: time.Second, ConfirmTimeout: 30 * time.Second})

	tx, err := f.client.PlayGame(t.Context(), PlayRequest{Player: "p", Bet: decimal.NewFromInt(2)})
	require.NoError(t, err)

	pending, err := f.client.Receipt(t.Context(), tx)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status)
	assert.True(t, pending.Seed.IsZero(), "pending receipt hides the seed")
	assert.Equal(t, blackjack.OutcomeNone, pending.Outcome)

	receipt, err := runAdvancing(t, f.clock, time.Second, func() (*Receipt, error) {
		return f.client.WaitForReceipt(context.Background(), tx)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, receipt.Status)
	assert.False(t, receipt.Seed.IsZero())
}

func TestWaitForReceiptTimeout(t *testing.T) {
	f := newFixture(t, RelayConfig{ConfirmDelay: time.Hour}, Config{PollInterval: time.Second, ConfirmTimeout: 5 * time.Second})

	tx, err := f.client.PlayGame(t.Context(), PlayRequest{Player: "p", Bet: decimal.NewFromInt(2)})
	require.NoError(t, err)

	_, err = runAdvancing(t, f.clock, time.Second, func() (*Receipt, error) {
		return f.client.WaitForReceipt(context.Background(), tx)
	})
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Contains(t, err.Error(), tx)

	// The transaction is not lost; it confirms later
	f.clock.Advance(time.Hour).MustWait(t.Context())
	receipt, err := f.client.Receipt(t.Context(), tx)
	require.NoError(t, err)
	assert.True(t, receipt.Confirmed())
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	f := newFixture(t, RelayConfig{ConfirmDelay: time.Hour}, Config{})

	tx, err := f.client.PlayGame(t.Context(), PlayRequest{Player: "p", Bet: decimal.NewFromInt(2)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = f.client.WaitForReceipt(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientErrors(t *testing.T) {
	t.Run("auth", func(t *testing.T) {
		f := newFixture(t, RelayConfig{Token: "secret"}, Config{Token: "wrong"})
		_, err := f.client.Balance(t.Context(), "p")

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
		assert.Equal(t, "invalid token", authErr.Message)
	})

	t.Run("token accepted", func(t *testing.T) {
		f := newFixture(t, RelayConfig{Token: "secret"}, Config{Token: "secret"})
		balance, err := f.client.Balance(t.Context(), "p")
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(100)))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		f := newFixture(t, RelayConfig{StartingBalance: decimal.NewFromInt(5)}, Config{})
		_, err := f.client.PlayGame(t.Context(), PlayRequest{Player: "p", Bet: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, RelayConfig{}, Config{})
		_, err := f.client.Receipt(t.Context(), "0xdead")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bad bet is not retried", func(t *testing.T) {
		f := newFixture(t, RelayConfig{}, Config{})
		f.relay.SetBalance("p", decimal.NewFromInt(100))
		_, err := f.client.PlayGame(t.Context(), PlayRequest{Player: "p", Bet: decimal.RequireFromString("0.5")})

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
		assert.False(t, httpErr.IsRetryable())
	})

	t.Run("client validation", func(t *testing.T) {
		f := newFixture(t, RelayConfig{}, Config{})
		_, err := f.client.PlayGame(t.Context(), PlayRequest{Bet: decimal.NewFromInt(1)})
		assert.Error(t, err)
		_, err = f.client.PlayGame(t.Context(), PlayRequest{Player: "p"})
		assert.Error(t, err)
		_, err = f.client.Receipt(t.Context(), "")
		assert.Error(t, err)
	})
}

func TestHTTPErrorIsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{402, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &HTTPError{StatusCode: tt.status}
		assert.Equal(t, tt.want, err.IsRetryable(), "status %d", tt.status)
		assert.Equal(t, tt.want, IsRetryable(err))
	}
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestBackoff(t *testing.T) {
	c := NewClient(Config{RetryDelay: time.Second, MaxRetryDelay: 3 * time.Second, Logger: testLogger()})
	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 3*time.Second, c.backoff(3))
	assert.Equal(t, 3*time.Second, c.backoff(10))
}
