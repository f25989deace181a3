package game

import (
	"fmt"
	"strings"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/stats"
)

var shareHeadlines = map[blackjack.Outcome]string{
	blackjack.OutcomeBlackjack: "🃏 BLACKJACK!",
	blackjack.OutcomeWin:       "🎉 Won a hand",
	blackjack.OutcomePush:      "🤝 Pushed",
	blackjack.OutcomeLose:      "😅 Lost a hand",
}

// ShareText renders a short post about a finished round. It returns an
// empty string while the round is still live.
func ShareText(r *Round, s stats.Stats, appURL string) string {
	if r == nil || !r.IsFinished() {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s of blackjack on Celo\n", shareHeadlines[r.Outcome()])
	fmt.Fprintf(&b, "Me: %s (%d) vs Dealer: %s (%d)\n",
		blackjack.FormatCards(r.player), blackjack.Total(r.player),
		blackjack.FormatCards(r.dealer), blackjack.Total(r.dealer))
	fmt.Fprintf(&b, "Record: %dW %dL %dP, %d blackjacks (%.0f%% win rate)\n",
		s.Wins+s.Blackjacks, s.Losses, s.Pushes, s.Blackjacks, s.WinRate())
	fmt.Fprintf(&b, "Seed: %s", r.Seed())
	if appURL != "" {
		fmt.Fprintf(&b, "\n%s", appURL)
	}
	return b.String()
}
