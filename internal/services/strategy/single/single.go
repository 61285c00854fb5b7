// Package single implements the one-asset variant of the infinite buying
// strategy: buy a split of cash while accumulating, sell everything at the
// profit target.
package single

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

// Params thresholds of the single-asset strategy.
type Params struct {
	// ProfitTargetPercent gain over average cost that triggers a full exit, e.g. 10.
	ProfitTargetPercent decimal.Decimal
	AggressiveDivisor   int
	ConservativeDivisor int
	MinTradeAmount      decimal.Decimal
}

// NewParams creates validated strategy parameters.
func NewParams(profitTargetPercent decimal.Decimal, aggressive, conservative int, minTrade decimal.Decimal) (Params, error) {
	if !profitTargetPercent.IsPositive() {
		return Params{}, errors.Errorf("profit target must be positive, got %s", profitTargetPercent.String())
	}
	if aggressive < 1 || conservative < 1 {
		return Params{}, errors.Errorf("divisors must be >= 1, got %d/%d", aggressive, conservative)
	}

	return Params{
		ProfitTargetPercent: profitTargetPercent,
		AggressiveDivisor:   aggressive,
		ConservativeDivisor: conservative,
		MinTradeAmount:      minTrade,
	}, nil
}

// BuyDecision represents a buy decision result.
type BuyDecision struct {
	ShouldBuy bool
	Divisor   int
	Reason    string
}

// Strategy stateless single-asset rules.
type Strategy struct {
	params Params
}

// New returns a single-asset strategy.
func New(params Params) *Strategy {
	return &Strategy{params: params}
}

// ShouldBuy picks the split to buy with. Outside the buy window nothing is
// bought unless forced.
func (s *Strategy) ShouldBuy(currentPrice, avgPrice, quantity decimal.Decimal, inBuyWindow, force bool) BuyDecision {
	if !inBuyWindow && !force {
		return BuyDecision{ShouldBuy: false, Reason: "outside_buy_window"}
	}

	if !quantity.IsPositive() {
		return BuyDecision{ShouldBuy: true, Divisor: s.params.AggressiveDivisor, Reason: "initial_entry"}
	}

	if currentPrice.LessThan(avgPrice) {
		return BuyDecision{ShouldBuy: true, Divisor: s.params.AggressiveDivisor, Reason: "below_average"}
	}

	return BuyDecision{ShouldBuy: true, Divisor: s.params.ConservativeDivisor, Reason: "above_average"}
}

// ShouldSell reports whether the position reached the profit target. The
// target is inclusive.
func (s *Strategy) ShouldSell(currentPrice, avgPrice, quantity decimal.Decimal) bool {
	if !quantity.IsPositive() || !avgPrice.IsPositive() {
		return false
	}
	return domain.PercentageDiff(currentPrice, avgPrice).GreaterThanOrEqual(s.params.ProfitTargetPercent)
}

// Decide turns the rules into at most one action for the tracked position.
// Exits leave the proceeds in cash; buys are funded from cash.
func (s *Strategy) Decide(pos domain.Position, cash decimal.Decimal, inBuyWindow, force bool) []domain.Action {
	if s.ShouldSell(pos.CurrentPrice, pos.AvgPrice, pos.Quantity) {
		return []domain.Action{domain.ProfitTaking{
			SellSymbol: pos.Symbol,
			SellQty:    pos.Quantity,
			Amount:     domain.FloorUnits(pos.CurrentPrice.Sub(pos.AvgPrice).Mul(pos.Quantity)),
			Reason: fmt.Sprintf("profit %s%% reached target %s%%",
				pos.ProfitPercent().StringFixed(2), s.params.ProfitTargetPercent.String()),
		}}
	}

	buy := s.ShouldBuy(pos.CurrentPrice, pos.AvgPrice, pos.Quantity, inBuyWindow, force)
	if !buy.ShouldBuy {
		return nil
	}

	amount := domain.FloorUnits(cash.Div(decimal.NewFromInt(int64(buy.Divisor))))
	if amount.IsZero() || amount.LessThan(s.params.MinTradeAmount) {
		return nil
	}

	return []domain.Action{domain.DipBuying{
		SellSymbol: domain.CashSymbol,
		SellAmount: amount,
		BuySymbol:  pos.Symbol,
		SplitCount: buy.Divisor,
		Reason:     buy.Reason,
	}}
}
