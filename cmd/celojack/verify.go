package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/config"
	"github.com/lox/celojack/internal/fairness"
	"github.com/lox/celojack/internal/settlement"
)

// VerifyCmd replays a round from its seed
type VerifyCmd struct {
	Seed       string `help:"Round seed (hex), as shown after a round or in a chain receipt"`
	ServerSeed string `help:"Revealed server seed (hex)"`
	ClientSeed string `default:"celojack" help:"Client seed mixed into the server seed"`
	Nonce      uint64 `help:"Round nonce"`
	Commitment string `help:"Server seed commitment published before the round"`
	Player     string `help:"Claimed player cards, e.g. 'As 10d 5c'"`
	Dealer     string `help:"Claimed dealer cards"`
	Outcome    string `help:"Claimed outcome: win, lose, push or blackjack"`
	Bet        string `default:"1" help:"Bet used to report the payout"`
	Config     string `short:"c" default:"celojack.hcl" help:"Path to HCL configuration file for house rules"`
	JSON       bool   `help:"Print the verification as JSON"`
	NoColor    bool   `help:"Disable colors"`
}

func (c *VerifyCmd) Run() error {
	if c.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	rules, err := cfg.BlackjackRules()
	if err != nil {
		return err
	}
	claim, err := c.claim()
	if err != nil {
		return err
	}

	v, err := settlement.Verify(claim, rules)
	if c.JSON {
		if encErr := writeVerificationJSON(os.Stdout, v, err); encErr != nil {
			return encErr
		}
	} else {
		printVerification(os.Stdout, v, err)
	}
	return err
}

func (c *VerifyCmd) claim() (settlement.Claim, error) {
	var claim settlement.Claim
	var err error

	if c.Seed != "" {
		if claim.Seed, err = blackjack.ParseSeed(c.Seed); err != nil {
			return claim, fmt.Errorf("invalid seed: %w", err)
		}
	}
	if c.ServerSeed != "" {
		serverSeed, err := blackjack.ParseSeed(c.ServerSeed)
		if err != nil {
			return claim, fmt.Errorf("invalid server seed: %w", err)
		}
		claim.Reveal = &fairness.Reveal{ServerSeed: serverSeed, ClientSeed: c.ClientSeed, Nonce: c.Nonce}
		claim.Commitment = c.Commitment
	} else if c.Commitment != "" {
		return claim, errors.New("a commitment needs --server-seed to check against")
	}
	if claim.Seed.IsZero() && claim.Reveal == nil {
		return claim, errors.New("give --seed or --server-seed")
	}

	if claim.Player, err = parseOptionalCards(c.Player); err != nil {
		return claim, fmt.Errorf("player cards: %w", err)
	}
	if claim.Dealer, err = parseOptionalCards(c.Dealer); err != nil {
		return claim, fmt.Errorf("dealer cards: %w", err)
	}
	if c.Outcome != "" {
		if claim.Outcome, err = blackjack.ParseOutcome(c.Outcome); err != nil {
			return claim, err
		}
	}
	if claim.Bet, err = decimal.NewFromString(c.Bet); err != nil {
		return claim, fmt.Errorf("invalid bet %q", c.Bet)
	}
	return claim, nil
}

func parseOptionalCards(s string) ([]blackjack.Card, error) {
	if s == "" {
		return nil, nil
	}
	return blackjack.ParseCards(s)
}

func writeVerificationJSON(w io.Writer, v settlement.Verification, verr error) error {
	out := struct {
		Valid        bool                    `json:"valid"`
		Error        string                  `json:"error,omitempty"`
		Verification settlement.Verification `json:"verification"`
	}{Valid: verr == nil, Verification: v}
	if verr != nil {
		out.Error = verr.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printVerification(w io.Writer, v settlement.Verification, verr error) {
	if v.Seed.IsZero() {
		fmt.Fprintln(w, renderError(verr))
		return
	}
	fmt.Fprintf(w, "Seed:    %s\n", v.Seed)
	fmt.Fprintf(w, "Player:  %s  (%d)\n", renderCards(v.Player, false), blackjack.Total(v.Player))
	fmt.Fprintf(w, "Dealer:  %s  (%d)\n", renderCards(v.Dealer, false), blackjack.Total(v.Dealer))
	fmt.Fprintf(w, "Outcome: %s  payout %s\n", renderOutcome(v.Outcome, v.Outcome.String()), v.Payout.StringFixed(2))
	for i, step := range v.History {
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("%2d. %s", i+1, step)))
	}
	if verr != nil {
		fmt.Fprintln(w, renderError(verr))
		return
	}
	fmt.Fprintln(w, winStyle.Render("Verified"))
}
