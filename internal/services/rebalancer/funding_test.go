package rebalancer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectFunding(t *testing.T) {
	tests := []struct {
		name       string
		candidates []FundingCandidate
		want       string
		found      bool
	}{
		{
			name: "first qualifying by rank",
			candidates: []FundingCandidate{
				{Symbol: "A", Quantity: d("5"), InProfit: true, Rank: 2},
				{Symbol: "B", Quantity: d("0"), InProfit: true, Rank: 0},
				{Symbol: "C", Quantity: d("3"), InProfit: false, Rank: 1},
			},
			want:  "A",
			found: true,
		},
		{
			name: "rank wins over input order",
			candidates: []FundingCandidate{
				{Symbol: "A", Quantity: d("5"), InProfit: true, Rank: 1},
				{Symbol: "B", Quantity: d("1"), InProfit: true, Rank: 0},
			},
			want:  "B",
			found: true,
		},
		{
			name: "all at a loss",
			candidates: []FundingCandidate{
				{Symbol: "A", Quantity: d("5"), Rank: 0},
			},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectFunding(tt.candidates)
			require.Equal(t, tt.found, ok)
			require.Equal(t, tt.want, got.Symbol)
		})
	}
}
