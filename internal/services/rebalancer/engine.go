// Package rebalancer is the multi-asset decision engine: profit-taking,
// time-gated dip buying funded by rotating out of other holdings, periodic
// drift rebalancing and interest reinvestment.
package rebalancer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"go.uber.org/zap"
)

type portfolioReader interface {
	Position(symbol string) (domain.Position, bool)
	Cash() decimal.Decimal
	NeedsRebalancing(threshold decimal.Decimal) bool
	CalculateRebalancingTrades() []domain.Rebalance
}

type auditSink interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}

// Engine proposes and executes trade actions for one tick at a time.
// Callers must not invoke it concurrently.
type Engine struct {
	l         *zap.Logger
	params    Params
	portfolio portfolioReader
	clock     Clock
	audit     auditSink
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithAudit sets the sink that receives proposed and executed actions.
func WithAudit(a auditSink) Option {
	return func(e *Engine) {
		e.audit = a
	}
}

// NewEngine creates an engine reading holdings from portfolio.
func NewEngine(l *zap.Logger, params Params, portfolio portfolioReader, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid rebalancer params")
	}
	if portfolio == nil {
		return nil, errors.New("portfolio is required")
	}
	if l == nil {
		l = zap.NewNop()
	}

	e := &Engine{
		l:         l,
		params:    params,
		portfolio: portfolio,
		clock:     SystemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params {
	return e.params
}

// GetRebalancingActions evaluates, in priority order, profit-taking, dip
// buying and the periodic rebalance, and returns the actions of the first
// rule that fires.
func (e *Engine) GetRebalancingActions(ctx context.Context, mode domain.ModeState) []domain.Action {
	if pt := e.CheckProfitTarget(mode); pt != nil {
		return e.Propose(ctx, []domain.Action{*pt})
	}

	if db := e.CheckDipBuying(mode); db != nil {
		return e.Propose(ctx, []domain.Action{*db})
	}

	if e.params.SuppressPeriodicRebalance {
		return nil
	}
	if !e.portfolio.NeedsRebalancing(e.params.PeriodicThreshold) {
		return nil
	}

	trades := e.portfolio.CalculateRebalancingTrades()
	actions := make([]domain.Action, 0, len(trades))
	for _, t := range trades {
		actions = append(actions, t)
	}
	if len(actions) > 0 {
		e.l.Info("Periodic rebalance triggered", zap.Int("trades", len(actions)))
	}

	return e.Propose(ctx, actions)
}

// CheckProfitTarget returns a full exit of the primary asset once its gain
// over average cost reaches the profit target.
func (e *Engine) CheckProfitTarget(mode domain.ModeState) *domain.ProfitTaking {
	pos, ok := e.portfolio.Position(e.params.PrimarySymbol)
	if !ok || pos.IsEmpty() || !pos.AvgPrice.IsPositive() {
		return nil
	}

	target := e.params.profitTargetFor(mode.DipBuyMode)
	profit := pos.ProfitFraction()
	if profit.LessThan(target) {
		return nil
	}

	amount := domain.FloorUnits(pos.CurrentPrice.Sub(pos.AvgPrice).Mul(pos.Quantity))
	reason := fmt.Sprintf("profit %s%% reached target %s%%",
		domain.FractionToPercent(profit).StringFixed(2), domain.FractionToPercent(target).StringFixed(2))

	e.l.Info("Profit target reached",
		zap.String("symbol", pos.Symbol),
		zap.String("avg_price", pos.AvgPrice.String()),
		zap.String("current_price", pos.CurrentPrice.String()),
		zap.String("profit_amount", amount.String()))

	return &domain.ProfitTaking{
		SellSymbol: pos.Symbol,
		SellQty:    pos.Quantity,
		BuySymbol:  e.params.ReinvestSymbol,
		Amount:     amount,
		Reason:     reason,
	}
}

// CheckDipBuying returns a dip buy of the primary asset when the time gate is
// open and a funding source qualifies.
func (e *Engine) CheckDipBuying(mode domain.ModeState) *domain.DipBuying {
	if !e.DipBuyAllowed(mode) {
		return nil
	}

	primary, _ := e.portfolio.Position(e.params.PrimarySymbol)
	divisors := e.params.DivisorsFor(mode.StrategyMode)

	divisor := divisors.Conservative
	reason := fmt.Sprintf("above average: price %s >= avg %s, 1/%d split",
		primary.CurrentPrice.String(), primary.AvgPrice.String(), divisors.Conservative)
	switch {
	case primary.IsEmpty():
		divisor = divisors.Aggressive
		reason = fmt.Sprintf("initial entry: 1/%d split", divisor)
	case primary.BelowAverage():
		divisor = divisors.Aggressive
		reason = fmt.Sprintf("below average: price %s < avg %s (%s%%), 1/%d split",
			primary.CurrentPrice.String(), primary.AvgPrice.String(), primary.ProfitPercent().StringFixed(2), divisor)
	}

	sellSymbol, fundingValue, price, ok := e.fundingSource(mode.FundingPriority)
	if !ok {
		e.l.Debug("Dip buy skipped: no funding source qualifies")
		return nil
	}

	amount := domain.FloorUnits(fundingValue.Div(decimal.NewFromInt(int64(divisor))))
	if !amount.IsPositive() || amount.LessThan(e.params.MinTradeAmount) {
		e.l.Debug("Dip buy skipped: amount below minimum",
			zap.String("amount", amount.String()),
			zap.String("min_trade_amount", e.params.MinTradeAmount.String()))
		return nil
	}

	action := &domain.DipBuying{
		SellSymbol: sellSymbol,
		SellAmount: amount,
		BuySymbol:  e.params.PrimarySymbol,
		SplitCount: divisor,
		Reason:     reason,
	}
	if sellSymbol != domain.CashSymbol {
		action.SellQty = amount.Div(price)
	}

	e.l.Info("Dip buy decision",
		zap.String("funding", sellSymbol),
		zap.String("amount", amount.String()),
		zap.Int("split", divisor),
		zap.String("strategy_mode", mode.StrategyMode.String()))

	return action
}

// CheckInterestReinvest proposes buying the interest asset with the floored
// monthly interest when it exceeds the minimum.
func (e *Engine) CheckInterestReinvest(ctx context.Context, monthlyInterest decimal.Decimal) *domain.InterestReinvest {
	amount := domain.FloorUnits(monthlyInterest)
	if !amount.GreaterThan(e.params.MinInterestAmount) {
		return nil
	}

	action := domain.InterestReinvest{
		BuySymbol: e.params.InterestSymbol,
		Amount:    amount,
		Reason:    fmt.Sprintf("monthly interest %s reinvested", amount.String()),
	}
	e.Propose(ctx, []domain.Action{action})

	return &action
}

// DipBuyAllowed applies the time gate of the active dip-buy mode.
func (e *Engine) DipBuyAllowed(mode domain.ModeState) bool {
	now := e.clock.Now()

	switch mode.DipBuyMode {
	case domain.DipBuyModeAccelerated:
		if mode.LastDipBuyTime == nil {
			return true
		}
		return now.Sub(*mode.LastDipBuyTime) >= e.params.DipBuyInterval
	case domain.DipBuyModeDaily:
		if !e.params.DailyWindow.Contains(now) {
			return false
		}
		if mode.LastDipBuyTime == nil {
			return true
		}
		return !e.params.DailyWindow.SameDay(*mode.LastDipBuyTime, now)
	default:
		return false
	}
}

// fundingSource resolves the funding priority list into candidates and picks
// one; unknown symbols, unpriced holdings and the primary asset are skipped.
func (e *Engine) fundingSource(priority []string) (symbol string, value, price decimal.Decimal, ok bool) {
	candidates := make([]FundingCandidate, 0, len(priority))
	positions := make(map[string]domain.Position, len(priority))
	for rank, s := range priority {
		if s == e.params.PrimarySymbol {
			continue
		}
		pos, known := e.portfolio.Position(s)
		if !known || !pos.CurrentPrice.IsPositive() {
			continue
		}
		positions[s] = pos
		candidates = append(candidates, FundingCandidate{
			Symbol:   s,
			Quantity: pos.Quantity,
			InProfit: pos.InProfit(),
			Rank:     rank,
		})
	}

	if c, found := SelectFunding(candidates); found {
		pos := positions[c.Symbol]
		return c.Symbol, pos.Value(), pos.CurrentPrice, true
	}

	if e.params.AllowCashFunding && e.portfolio.Cash().IsPositive() {
		return domain.CashSymbol, e.portfolio.Cash(), decimal.NewFromInt(1), true
	}

	return "", decimal.Zero, decimal.Zero, false
}

// Propose records each action as proposed and returns the slice unchanged.
func (e *Engine) Propose(ctx context.Context, actions []domain.Action) []domain.Action {
	for _, a := range actions {
		e.record(ctx, a, domain.AuditStageProposed, true, "")
	}
	return actions
}

// record writes to the audit sink; failures are logged and otherwise ignored.
// A non-empty note is appended to the action's reason.
func (e *Engine) record(ctx context.Context, a domain.Action, stage domain.AuditStage, success bool, note string) {
	if e.audit == nil {
		return
	}
	rec := domain.NewAuditRecord(uuid.New().String(), e.clock.Now(), a, stage, success)
	if note != "" {
		rec.Reason += "; " + note
	}
	if err := e.audit.Record(ctx, rec); err != nil {
		e.l.Warn("failed to write audit record",
			zap.Error(err),
			zap.String("kind", rec.Kind),
			zap.String("stage", string(stage)))
	}
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}
