package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/celojack/internal/chain"
	"github.com/lox/celojack/internal/config"
	"github.com/lox/celojack/internal/credentials"
	"github.com/lox/celojack/internal/server"
	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/store"
)

// ServeCmd runs the WebSocket session server
type ServeCmd struct {
	Config    string `short:"c" default:"celojack.hcl" help:"Path to HCL configuration file"`
	Addr      string `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel  string `short:"l" help:"Log level (overrides config)"`
	Store     string `help:"Store kind: memory, file or sqlite (overrides config)"`
	StorePath string `help:"Store path (overrides config)"`
	Relay     string `help:"Contract relay endpoint (overrides config)"`
}

func (c *ServeCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := c.applyOverrides(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := setupLogger(cfg.Server.LogLevel, cfg.Server.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	rules, err := cfg.BlackjackRules()
	if err != nil {
		return err
	}
	mode, err := settlement.ParseMode(cfg.Settlement.DefaultMode)
	if err != nil {
		return err
	}

	st, err := store.Open(store.Kind(cfg.Store.Kind), cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	contract := newContract(cfg.Settlement.Relay, logger)

	manager := session.NewManager(session.ManagerConfig{
		Rules:           rules,
		StartingCredits: cfg.StartingCredits(),
		DefaultMode:     mode,
		ClientSeed:      cfg.Settlement.ClientSeed,
		Contract:        contract,
		Store:           st,
		Logger:          logger,
		AppURL:          cfg.Server.AppURL,
	})
	srv := server.NewServer(manager, logger)

	logger.Info("Starting celojack server",
		"addr", cfg.Address(),
		"store", cfg.Store.Kind,
		"mode", mode,
		"onchain", contract != nil,
		"h17", rules.DealerHitsSoft17,
		"blackjack_pays", rules.BlackjackPays)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Address())
	})
	g.Go(func() error {
		if err := server.WaitForHealthy(ctx, "http://"+cfg.Address()); err == nil {
			logger.Info("Server ready", "url", "ws://"+cfg.Address()+"/ws")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (c *ServeCmd) applyOverrides(cfg *config.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", c.Addr, err)
		}
		if cfg.Server.Port, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid port in %q", c.Addr)
		}
		cfg.Server.Address = host
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Store != "" {
		cfg.Store.Kind = c.Store
	}
	if c.StorePath != "" {
		cfg.Store.Path = c.StorePath
	}
	if c.Relay != "" {
		if cfg.Settlement.Relay == nil {
			cfg.Settlement.Relay = &config.RelaySettings{}
		}
		cfg.Settlement.Relay.Endpoint = c.Relay
	}
	return nil
}

// newContract builds contract settlement from the relay settings. It
// returns nil when no relay is configured. The API token comes from the
// environment or the OS keyring.
func newContract(relay *config.RelaySettings, logger *log.Logger) *settlement.Contract {
	if relay == nil {
		return nil
	}

	token, err := credentials.New(credentials.DefaultService).Lookup(relay.Endpoint)
	if err != nil {
		logger.Warn("Could not read relay token from keyring", "error", err)
	}

	d := relay.Durations()
	client := chain.NewClient(chain.Config{
		Endpoint:       relay.Endpoint,
		Token:          token,
		MaxRetries:     relay.MaxRetries,
		RetryDelay:     d.RetryDelay,
		RequestTimeout: d.RequestTimeout,
		PollInterval:   d.PollInterval,
		ConfirmTimeout: d.ConfirmTimeout,
		Logger:         logger,
	})
	return settlement.NewContract(client, logger)
}
