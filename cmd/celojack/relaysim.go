package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lox/celojack/internal/chain"
	"github.com/lox/celojack/internal/config"
)

// RelaySimCmd serves the contract relay API backed by a local simulator
type RelaySimCmd struct {
	Addr            string        `short:"a" default:"localhost:8545" help:"Address to bind to"`
	Token           string        `env:"CELOJACK_RELAY_TOKEN" help:"Bearer token clients must present (empty allows all)"`
	StartingBalance string        `default:"100" help:"Balance of players the relay has not seen"`
	ConfirmDelay    time.Duration `default:"2s" help:"Time before a transaction confirms"`
	Config          string        `short:"c" default:"celojack.hcl" help:"Path to HCL configuration file for house rules"`
	LogLevel        string        `short:"l" default:"info" help:"Log level"`
}

func (c *RelaySimCmd) Run() error {
	logger, closer, err := setupLogger(c.LogLevel, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	rules, err := cfg.BlackjackRules()
	if err != nil {
		return err
	}
	balance, err := decimal.NewFromString(c.StartingBalance)
	if err != nil {
		return fmt.Errorf("invalid starting balance %q", c.StartingBalance)
	}

	relay, err := chain.NewRelay(chain.RelayConfig{
		Rules:           rules,
		Token:           c.Token,
		StartingBalance: balance,
		ConfirmDelay:    c.ConfirmDelay,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           relay,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Starting relay simulator",
		"addr", c.Addr,
		"commitment", relay.Commitment(),
		"confirm_delay", c.ConfirmDelay,
		"auth", c.Token != "")

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
