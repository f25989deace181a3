package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/game"
	"github.com/lox/celojack/internal/session"
	"github.com/lox/celojack/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true).
			Padding(0, 1)

	redCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	blackCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	hiddenCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	winStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	pushStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

func renderCard(c blackjack.Card) string {
	if c.Suit.IsRed() {
		return redCardStyle.Render(c.String())
	}
	return blackCardStyle.Render(c.String())
}

// renderCards draws a hand, with a face-down card when hidden
func renderCards(cards []blackjack.Card, hidden bool) string {
	parts := make([]string, 0, len(cards)+1)
	for _, c := range cards {
		parts = append(parts, renderCard(c))
	}
	if hidden {
		parts = append(parts, hiddenCardStyle.Render("??"))
	}
	return strings.Join(parts, " ")
}

func renderOutcome(o blackjack.Outcome, message string) string {
	switch {
	case o.IsWin():
		return winStyle.Render(message)
	case o == blackjack.OutcomePush:
		return pushStyle.Render(message)
	case o == blackjack.OutcomeLose:
		return errorStyle.Render(message)
	}
	return message
}

// renderView draws the table after an intent
func renderView(v session.View) string {
	var b strings.Builder
	r := v.Round

	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("celojack · %s", v.Mode)))
	if r.Phase == game.Betting {
		fmt.Fprintln(&b, r.Message)
		fmt.Fprintln(&b, renderStats(v))
		return b.String()
	}

	dealerTotal := fmt.Sprint(r.DealerTotal)
	if r.DealerHidden {
		dealerTotal += "+?"
	}
	fmt.Fprintf(&b, "Dealer: %s  (%s)\n", renderCards(r.Dealer, r.DealerHidden), dealerTotal)

	playerTotal := fmt.Sprint(r.PlayerTotal)
	if r.PlayerSoft {
		playerTotal = "soft " + playerTotal
	}
	fmt.Fprintf(&b, "You:    %s  (%s)\n", renderCards(r.Player, false), playerTotal)
	fmt.Fprintf(&b, "Bet: %s\n", r.Bet)

	if r.Phase == game.Finished {
		fmt.Fprintf(&b, "%s  payout %s\n", renderOutcome(r.Outcome, r.Message), r.Payout.StringFixed(2))
		if v.Receipt != nil && v.Receipt.TxHash != "" {
			fmt.Fprintln(&b, infoStyle.Render("tx "+v.Receipt.TxHash))
		}
		if r.Seed != "" {
			fmt.Fprintln(&b, infoStyle.Render("seed "+r.Seed))
		}
		fmt.Fprintln(&b, renderStats(v))
	} else {
		fmt.Fprintln(&b, r.Message)
		if v.Commitment != "" {
			fmt.Fprintln(&b, infoStyle.Render("commitment "+v.Commitment))
		}
	}
	if v.PendingTx != "" {
		fmt.Fprintln(&b, pushStyle.Render("pending tx "+v.PendingTx+" (type recover)"))
	}
	return b.String()
}

func renderStats(v session.View) string {
	s := v.Stats
	return infoStyle.Render(fmt.Sprintf("Credits: %s  Rounds: %d  W/L/P/BJ: %d/%d/%d/%d  Win rate: %.1f%%",
		s.Credits.StringFixed(2), s.Rounds, s.Wins, s.Losses, s.Pushes, s.Blackjacks, v.WinRate))
}

func renderRounds(rounds []store.Round) string {
	if len(rounds) == 0 {
		return infoStyle.Render("No rounds yet")
	}
	var b strings.Builder
	for _, r := range rounds {
		fmt.Fprintf(&b, "%s  %-6s %-9s bet %s payout %s  %s vs %s\n",
			r.FinishedAt.Format("15:04:05"), r.Mode, r.Outcome, r.Bet, r.Payout.StringFixed(2),
			blackjack.FormatCards(r.Player), blackjack.FormatCards(r.Dealer))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderError(err error) string {
	return errorStyle.Render("error: " + err.Error())
}
