package rebalancer

import (
	"sort"

	"github.com/shopspring/decimal"
)

// FundingCandidate holding that may be liquidated to fund a dip buy.
type FundingCandidate struct {
	Symbol   string
	Quantity decimal.Decimal
	InProfit bool
	// Rank is the position in the funding priority list, lower first.
	Rank int
}

// SelectFunding returns the highest-priority candidate that is held and not
// trading at a loss.
func SelectFunding(candidates []FundingCandidate) (FundingCandidate, bool) {
	ordered := append([]FundingCandidate(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	for _, c := range ordered {
		if c.Quantity.IsPositive() && c.InProfit {
			return c, true
		}
	}

	return FundingCandidate{}, false
}
