package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/celojack/blackjack"
)

// RoundResult is the outcome of a single simulated round
type RoundResult struct {
	Net         float64           // Net result in units of the bet
	Seed        blackjack.Seed    // Deck seed (for replay)
	Outcome     blackjack.Outcome // Resolved outcome
	PlayerCards int               // Cards the player ended with
	PlayerBust  bool
	DealerBust  bool
}

// OutcomeStats tracks the rounds ending in one outcome
type OutcomeStats struct {
	Rounds int
	SumNet float64
}

// Statistics tracks simulation results in bet units per round
type Statistics struct {
	Rounds  int
	SumNet  float64
	SumNet2 float64   // Sum of squares for variance calculation
	Values  []float64 // Store all values for median/percentile calculation

	// Per-outcome ledger; the buckets must add up to SumNet
	ByOutcome [5]OutcomeStats // Indexed by blackjack.Outcome, 0 unused

	PlayerBusts int
	DealerBusts int
	MaxCards    int // Most cards the player held in one round
}

// Mean returns the arithmetic mean of all results in bets per round
func (s *Statistics) Mean() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.SumNet / float64(s.Rounds)
}

// HouseEdge returns the house advantage as a percentage of the bet
func (s *Statistics) HouseEdge() float64 {
	return -s.Mean() * 100
}

// Variance returns the sample variance of all results
func (s *Statistics) Variance() float64 {
	if s.Rounds < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumNet2 - float64(s.Rounds)*mean*mean) / float64(s.Rounds-1)
}

// StdDev returns the sample standard deviation of all results
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Rounds))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Add incorporates a new round result into the statistics
func (s *Statistics) Add(result RoundResult) {
	net := result.Net
	s.Rounds++
	s.SumNet += net
	s.SumNet2 += net * net
	s.Values = append(s.Values, net)

	if int(result.Outcome) < len(s.ByOutcome) {
		s.ByOutcome[result.Outcome].Rounds++
		s.ByOutcome[result.Outcome].SumNet += net
	}
	if result.PlayerBust {
		s.PlayerBusts++
	}
	if result.DealerBust {
		s.DealerBusts++
	}
	if result.PlayerCards > s.MaxCards {
		s.MaxCards = result.PlayerCards
	}
}

// Merge folds another set of results into s. Values keep their order of
// arrival per worker, which is fine for order-free summaries.
func (s *Statistics) Merge(other *Statistics) {
	s.Rounds += other.Rounds
	s.SumNet += other.SumNet
	s.SumNet2 += other.SumNet2
	s.Values = append(s.Values, other.Values...)
	for i := range s.ByOutcome {
		s.ByOutcome[i].Rounds += other.ByOutcome[i].Rounds
		s.ByOutcome[i].SumNet += other.ByOutcome[i].SumNet
	}
	s.PlayerBusts += other.PlayerBusts
	s.DealerBusts += other.DealerBusts
	if other.MaxCards > s.MaxCards {
		s.MaxCards = other.MaxCards
	}
}

// Rate returns the share of rounds that ended in outcome, as a percentage
func (s *Statistics) Rate(outcome blackjack.Outcome) float64 {
	if s.Rounds == 0 || int(outcome) >= len(s.ByOutcome) {
		return 0
	}
	return float64(s.ByOutcome[outcome].Rounds) / float64(s.Rounds) * 100
}

// Median returns the median value of all results
func (s *Statistics) Median() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the value at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// IsLedgerBalanced checks the per-outcome buckets add up to the total
func (s *Statistics) IsLedgerBalanced() bool {
	var sum float64
	for _, b := range s.ByOutcome {
		sum += b.SumNet
	}
	return math.Abs(s.SumNet-sum) <= 1e-6
}

// Validate performs consistency checks on the collected results
func (s *Statistics) Validate() error {
	if !s.IsLedgerBalanced() {
		return fmt.Errorf("ledger mismatch: SumNet=%.6f does not match per-outcome totals", s.SumNet)
	}

	if s.Rounds <= 0 {
		return fmt.Errorf("invalid rounds count: %d", s.Rounds)
	}

	if len(s.Values) != s.Rounds {
		return fmt.Errorf("values array length (%d) does not match rounds count (%d)",
			len(s.Values), s.Rounds)
	}

	if s.ByOutcome[blackjack.OutcomeNone].Rounds != 0 {
		return fmt.Errorf("%d rounds recorded without an outcome", s.ByOutcome[blackjack.OutcomeNone].Rounds)
	}

	total := 0
	for _, b := range s.ByOutcome {
		total += b.Rounds
	}
	if total != s.Rounds {
		return fmt.Errorf("outcome rounds total (%d) does not match total rounds (%d)", total, s.Rounds)
	}

	if s.PlayerBusts > s.ByOutcome[blackjack.OutcomeLose].Rounds {
		return fmt.Errorf("player busts (%d) exceed losses (%d)", s.PlayerBusts, s.ByOutcome[blackjack.OutcomeLose].Rounds)
	}

	return nil
}
