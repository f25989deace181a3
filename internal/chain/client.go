// Package chain talks to the relay that submits playGame() transactions to
// the on-chain blackjack contract and reports their receipts.
//
// The relay speaks a small JSON API:
//
//	POST /v1/games                      submit playGame, returns {"tx_hash"}
//	GET  /v1/games/{tx}                 receipt, pending until mined
//	GET  /v1/players/{player}/balance   on-chain credit balance
//
// Transient failures (429 and 5xx) are retried with exponential backoff.
// Submissions carry a request ID so a retried POST never plays twice.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
)

// Config holds configuration for the relay client.
type Config struct {
	// Endpoint is the relay base URL, e.g. "https://relay.example.org".
	Endpoint string

	// Token is sent as a bearer token. Optional for local relays.
	Token string

	// MaxRetries is the maximum number of retry attempts for retryable errors.
	// Defaults to 3 if zero.
	MaxRetries int

	// RetryDelay is the initial delay before the first retry.
	// Defaults to 1 second if zero.
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 8 seconds if zero.
	MaxRetryDelay time.Duration

	// RequestTimeout bounds each individual HTTP attempt.
	// Defaults to 10 seconds if zero.
	RequestTimeout time.Duration

	// PollInterval is the delay between receipt polls.
	// Defaults to 1 second if zero.
	PollInterval time.Duration

	// ConfirmTimeout bounds how long WaitForReceipt polls for a final status.
	// Defaults to 60 seconds if zero.
	ConfirmTimeout time.Duration

	// HTTPClient allows injecting a custom HTTP client.
	HTTPClient *http.Client

	// Clock drives backoff and polling. Defaults to the real clock.
	Clock quartz.Clock

	Logger *log.Logger
}

// Client is a relay API client.
type Client struct {
	config   Config
	endpoint string
	http     *http.Client
	clock    quartz.Clock
	logger   *log.Logger
}

// NewClient creates a relay client, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 8 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr)
	}

	return &Client{
		config:   cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     cfg.HTTPClient,
		clock:    cfg.Clock,
		logger:   cfg.Logger.WithPrefix("chain"),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// PlayGame submits playGame() and returns the transaction hash.
func (c *Client) PlayGame(ctx context.Context, req PlayRequest) (string, error) {
	if req.Player == "" {
		return "", fmt.Errorf("chain: player address is required")
	}
	if !req.Bet.IsPositive() {
		return "", fmt.Errorf("chain: bet must be positive, got %s", req.Bet)
	}

	var resp submitResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/v1/games", req, &resp); err != nil {
		return "", err
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("chain: relay returned empty transaction hash")
	}

	c.logger.Debug("Submitted playGame", "player", req.Player, "bet", req.Bet, "tx", resp.TxHash)
	return resp.TxHash, nil
}

// Receipt fetches the current receipt for a transaction. It returns
// ErrNotFound when the relay has not seen the transaction yet.
func (c *Client) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	if txHash == "" {
		return nil, fmt.Errorf("chain: transaction hash is required")
	}
	var receipt Receipt
	if err := c.doWithRetry(ctx, http.MethodGet, "/v1/games/"+url.PathEscape(txHash), nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// WaitForReceipt polls until the transaction is confirmed or reverted.
// A reverted transaction is returned together with a *RevertedError. If
// the confirmation deadline passes first the error wraps
// ErrConfirmationTimeout and the caller may resume polling later.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	start := c.clock.Now()
	for polls := 1; ; polls++ {
		receipt, err := c.Receipt(ctx, txHash)
		switch {
		case errors.Is(err, ErrNotFound):
			// The relay may lag behind its own submission endpoint
		case err != nil:
			return nil, err
		case receipt.Status == StatusConfirmed:
			c.logger.Debug("Transaction confirmed", "tx", txHash, "polls", polls, "outcome", receipt.Outcome)
			return receipt, nil
		case receipt.Status == StatusReverted:
			return receipt, &RevertedError{TxHash: txHash, Reason: receipt.Reason}
		}

		if c.clock.Now().Sub(start) >= c.config.ConfirmTimeout {
			c.logger.Warn("Transaction still pending", "tx", txHash, "waited", c.config.ConfirmTimeout)
			return nil, fmt.Errorf("transaction %s: %w", txHash, ErrConfirmationTimeout)
		}

		if err := c.sleep(ctx, c.config.PollInterval, "poll"); err != nil {
			return nil, err
		}
	}
}

// Balance returns the on-chain credit balance of a player.
func (c *Client) Balance(ctx context.Context, player string) (decimal.Decimal, error) {
	if player == "" {
		return decimal.Zero, fmt.Errorf("chain: player address is required")
	}
	var resp balanceResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/v1/players/"+url.PathEscape(player)+"/balance", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// doWithRetry executes a request with retry on transient errors.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chain: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("Retrying relay request", "method", method, "path", path, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay, "retry"); err != nil {
				return err
			}
		}

		lastErr = c.do(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("chain: max retries exceeded: %w", lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.config.RetryDelay) * math.Pow(2, float64(attempt-1)))
	return min(delay, c.config.MaxRetryDelay)
}

func (c *Client) sleep(ctx context.Context, d time.Duration, tag string) error {
	timer := c.clock.NewTimer(d, "chain", tag)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("chain: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network errors surface as 503 so they share the retry path
		return &HTTPError{StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("chain: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, errorMessage(data))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &HTTPError{StatusCode: resp.StatusCode, Body: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("chain: decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
