package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/internal/config"
	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/store"
)

// PlayCmd plays a session in the terminal
type PlayCmd struct {
	Config   string `short:"c" default:"celojack.hcl" help:"Path to HCL configuration file"`
	Session  string `default:"cli" help:"Session ID; stats persist per session in the configured store"`
	Player   string `help:"On-chain player address"`
	Relay    string `help:"Contract relay endpoint (overrides config)"`
	Bet      string `default:"10" help:"Default bet"`
	NoColor  bool   `help:"Disable colors"`
	LogLevel string `default:"warn" help:"Log level"`
}

const playHelp = `Commands:
  deal [bet]     start a free round (d)
  hit            draw a card (h)
  stand          end your turn (s)
  chain [bet]    play a round on-chain (c)
  mode MODE      switch to free or onchain
  recover        resume a pending on-chain round
  seed TEXT      set the client seed for future rounds
  reset          reset free-play credits
  stats          show the table and stats
  history        list recent rounds
  share          print share text for the last round
  quit           leave (q)`

func (c *PlayCmd) Run() error {
	if c.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Relay != "" {
		cfg.Settlement.Relay = &config.RelaySettings{Endpoint: c.Relay}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	bet, err := decimal.NewFromString(c.Bet)
	if err != nil {
		return fmt.Errorf("invalid bet %q", c.Bet)
	}

	logger, closer, err := setupLogger(c.LogLevel, cfg.Server.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	rules, err := cfg.BlackjackRules()
	if err != nil {
		return err
	}
	st, err := store.Open(store.Kind(cfg.Store.Kind), cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	manager := session.NewManager(session.ManagerConfig{
		Rules:           rules,
		StartingCredits: cfg.StartingCredits(),
		ClientSeed:      cfg.Settlement.ClientSeed,
		Contract:        newContract(cfg.Settlement.Relay, logger),
		Store:           st,
		Logger:          logger,
		AppURL:          cfg.Server.AppURL,
	})

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	sess, err := manager.Open(ctx, c.Session, c.Player)
	if err != nil {
		return err
	}
	return runREPL(ctx, os.Stdin, os.Stdout, sess, bet)
}

// runREPL reads commands from in until quit, EOF or ctx is done
func runREPL(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, defaultBet decimal.Decimal) error {
	fmt.Fprintln(out, renderView(sess.View()))
	fmt.Fprintln(out, infoStyle.Render("Type help for commands"))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var (
			view session.View
			err  error
		)
		switch strings.ToLower(cmd) {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		case "help", "?":
			fmt.Fprintln(out, playHelp)
			continue
		case "d", "deal":
			var bet decimal.Decimal
			if bet, err = parseBet(arg, defaultBet); err == nil {
				view, err = sess.NewGame(ctx, bet)
			}
		case "h", "hit":
			view, err = sess.Hit(ctx)
		case "s", "stand":
			view, err = sess.Stand(ctx)
		case "c", "chain":
			var bet decimal.Decimal
			if bet, err = parseBet(arg, defaultBet); err == nil {
				fmt.Fprintln(out, infoStyle.Render("Waiting for the chain..."))
				view, err = sess.PlayOnChain(ctx, bet)
			}
		case "mode":
			view, err = sess.SwitchMode(ctx, settlement.Mode(arg))
		case "recover":
			view, err = sess.Recover(ctx)
		case "seed":
			view, err = sess.SetClientSeed(arg)
		case "reset":
			view, err = sess.ResetCredits(ctx)
		case "stats":
			view = sess.View()
		case "history":
			rounds, err := sess.Rounds(ctx, 10)
			if err != nil {
				fmt.Fprintln(out, renderError(err))
				continue
			}
			fmt.Fprintln(out, renderRounds(rounds))
			continue
		case "share":
			if share := sess.View().Share; share != "" {
				fmt.Fprintln(out, share)
			} else {
				fmt.Fprintln(out, infoStyle.Render("Finish a round first"))
			}
			continue
		default:
			fmt.Fprintln(out, renderError(fmt.Errorf("unknown command %q, type help", cmd)))
			continue
		}

		if err != nil {
			fmt.Fprintln(out, renderError(err))
			continue
		}
		fmt.Fprintln(out, renderView(view))
	}
}

func parseBet(arg string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if arg == "" {
		return fallback, nil
	}
	bet, err := decimal.NewFromString(arg)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid bet %q", arg)
	}
	return bet, nil
}
