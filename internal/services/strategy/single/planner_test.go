package single

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

type stubGate struct {
	open     bool
	proposed []domain.Action
}

func (g *stubGate) DipBuyAllowed(domain.ModeState) bool { return g.open }

func (g *stubGate) Propose(_ context.Context, actions []domain.Action) []domain.Action {
	g.proposed = append(g.proposed, actions...)
	return actions
}

type stubHoldings struct {
	pos  *domain.Position
	cash decimal.Decimal
}

func (h stubHoldings) Position(string) (domain.Position, bool) {
	if h.pos == nil {
		return domain.Position{}, false
	}
	return *h.pos, true
}

func (h stubHoldings) Cash() decimal.Decimal { return h.cash }

func TestPlanner_InitialEntryFromCash(t *testing.T) {
	gate := &stubGate{open: true}
	p := NewPlanner(newTestStrategy(t), "BTC", gate, stubHoldings{cash: decimal.NewFromInt(4000)})

	actions := p.GetRebalancingActions(context.Background(), domain.ModeState{})
	require.Len(t, actions, 1)

	buy, ok := actions[0].(domain.DipBuying)
	require.True(t, ok)
	assert.Equal(t, "BTC", buy.BuySymbol)
	assert.True(t, buy.FromCash())
	assert.True(t, decimal.NewFromInt(100).Equal(buy.SellAmount))
	assert.Equal(t, actions, gate.proposed)
}

func TestPlanner_ClosedGateOnlySells(t *testing.T) {
	gate := &stubGate{open: false}
	pos := domain.Position{
		Symbol:       "BTC",
		Quantity:     decimal.NewFromInt(2),
		AvgPrice:     decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(95),
	}
	p := NewPlanner(newTestStrategy(t), "BTC", gate, stubHoldings{pos: &pos, cash: decimal.NewFromInt(4000)})

	require.Empty(t, p.GetRebalancingActions(context.Background(), domain.ModeState{}))
	require.Empty(t, gate.proposed)

	pos.CurrentPrice = decimal.NewFromInt(110)
	p = NewPlanner(newTestStrategy(t), "BTC", gate, stubHoldings{pos: &pos})
	actions := p.GetRebalancingActions(context.Background(), domain.ModeState{})
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionKindProfitTaking, actions[0].Kind())
}
