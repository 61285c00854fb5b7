package single

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

type buyGate interface {
	DipBuyAllowed(mode domain.ModeState) bool
	Propose(ctx context.Context, actions []domain.Action) []domain.Action
}

type holdings interface {
	Position(symbol string) (domain.Position, bool)
	Cash() decimal.Decimal
}

// Planner drives the strategy from live holdings. The buy window is the
// dip-buy time gate of the current mode.
type Planner struct {
	strategy *Strategy
	symbol   string
	gate     buyGate
	holdings holdings
}

// NewPlanner creates a planner trading symbol.
func NewPlanner(strategy *Strategy, symbol string, gate buyGate, h holdings) *Planner {
	return &Planner{strategy: strategy, symbol: symbol, gate: gate, holdings: h}
}

// GetRebalancingActions returns at most one action for the tracked asset.
func (p *Planner) GetRebalancingActions(ctx context.Context, mode domain.ModeState) []domain.Action {
	pos, ok := p.holdings.Position(p.symbol)
	if !ok {
		pos = domain.Position{Symbol: p.symbol}
	}

	actions := p.strategy.Decide(pos, p.holdings.Cash(), p.gate.DipBuyAllowed(mode), false)
	if len(actions) == 0 {
		return nil
	}

	return p.gate.Propose(ctx, actions)
}
