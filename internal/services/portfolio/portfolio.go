// Package portfolio tracks cash, positions and target weights and derives
// value, allocation and drift metrics from them.
package portfolio

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"go.uber.org/zap"
)

// ErrInvalidAllocation is returned when target weights do not sum to one.
var ErrInvalidAllocation = errors.New("invalid target allocation")

var (
	allocationTolerance = decimal.RequireFromString("0.01")
	// minTradeDrift is the percentage-point drift, as a fraction, below which
	// no individual rebalance trade is proposed.
	minTradeDrift = decimal.RequireFromString("0.01")
)

// Manager owns the portfolio snapshot for a tick.
// Not safe for concurrent use; the polling loop serialises ticks.
type Manager struct {
	l              *zap.Logger
	positions      map[string]domain.Position
	cash           decimal.Decimal
	targets        map[string]decimal.Decimal
	initialCapital decimal.Decimal
}

// NewManager creates a manager with validated target weights.
func NewManager(l *zap.Logger, targets map[string]decimal.Decimal, initialCapital decimal.Decimal) (*Manager, error) {
	if l == nil {
		l = zap.NewNop()
	}
	m := &Manager{
		l:              l,
		positions:      make(map[string]domain.Position),
		cash:           decimal.Zero,
		initialCapital: initialCapital,
	}
	if err := m.UpdateTargetAllocation(targets); err != nil {
		return nil, err
	}

	return m, nil
}

// UpdatePositions replaces the tracked position of every supplied symbol.
// Symbols absent from the update keep their last known state.
func (m *Manager) UpdatePositions(updates map[string]domain.PositionUpdate) error {
	for symbol, u := range updates {
		pos, err := domain.NewPosition(symbol, u)
		if err != nil {
			return errors.Wrapf(err, "update position %s", symbol)
		}
		m.positions[symbol] = pos
	}

	return nil
}

// UpdateCash replaces the cash balance.
func (m *Manager) UpdateCash(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return errors.Errorf("cash must not be negative, got %s", amount.String())
	}
	m.cash = amount
	return nil
}

// Position returns the tracked position for symbol; ok is false if unknown.
func (m *Manager) Position(symbol string) (domain.Position, bool) {
	p, ok := m.positions[symbol]
	return p, ok
}

// Cash returns the cash balance.
func (m *Manager) Cash() decimal.Decimal {
	return m.cash
}

// InitialCapital returns the capital the portfolio started with.
func (m *Manager) InitialCapital() decimal.Decimal {
	return m.initialCapital
}

// Targets returns a copy of the target weights.
func (m *Manager) Targets() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m.targets))
	for s, w := range m.targets {
		out[s] = w
	}
	return out
}

// TotalValue returns cash plus the market value of every position.
func (m *Manager) TotalValue() decimal.Decimal {
	total := m.cash
	for _, p := range m.positions {
		total = total.Add(p.Value())
	}
	return total
}

// ReturnPercent returns total value change versus initial capital.
func (m *Manager) ReturnPercent() decimal.Decimal {
	return domain.PercentageDiff(m.TotalValue(), m.initialCapital)
}

// CurrentAllocation returns the weight of each position plus the synthetic
// CASH entry. All weights are zero when the portfolio is worth nothing.
func (m *Manager) CurrentAllocation() map[string]decimal.Decimal {
	total := m.TotalValue()
	out := make(map[string]decimal.Decimal, len(m.positions)+1)

	if !total.IsPositive() {
		for symbol := range m.positions {
			out[symbol] = decimal.Zero
		}
		out[domain.CashSymbol] = decimal.Zero
		return out
	}

	for symbol, p := range m.positions {
		out[symbol] = p.Value().Div(total)
	}
	out[domain.CashSymbol] = m.cash.Div(total)

	return out
}

// AllocationDrift returns current minus target weight for every target symbol.
func (m *Manager) AllocationDrift() map[string]decimal.Decimal {
	current := m.CurrentAllocation()
	drift := make(map[string]decimal.Decimal, len(m.targets))
	for symbol, target := range m.targets {
		drift[symbol] = current[symbol].Sub(target)
	}
	return drift
}

// NeedsRebalancing reports whether any absolute drift exceeds threshold.
func (m *Manager) NeedsRebalancing(threshold decimal.Decimal) bool {
	for _, d := range m.AllocationDrift() {
		if d.Abs().GreaterThan(threshold) {
			return true
		}
	}
	return false
}

// CalculateRebalancingTrades proposes one trade per target symbol whose drift
// exceeds one percentage point. Sells come first so their proceeds can fund
// the buys.
func (m *Manager) CalculateRebalancingTrades() []domain.Rebalance {
	total := m.TotalValue()
	current := m.CurrentAllocation()

	var sells, buys []domain.Rebalance
	for _, symbol := range m.sortedTargets() {
		if symbol == domain.CashSymbol {
			continue
		}
		target := m.targets[symbol]
		drift := current[symbol].Sub(target)
		if !drift.Abs().GreaterThan(minTradeDrift) {
			continue
		}

		pos := m.positions[symbol]
		diff := total.Mul(target).Sub(pos.Value())
		reason := fmt.Sprintf("%s: %s%% -> %s%%", symbol,
			domain.FractionToPercent(current[symbol]).StringFixed(1),
			domain.FractionToPercent(target).StringFixed(1))

		if diff.IsPositive() {
			buys = append(buys, domain.Rebalance{
				Symbol: symbol,
				Side:   domain.SideBuy,
				Amount: diff,
				Reason: reason,
			})
			continue
		}

		amount := diff.Neg()
		if !pos.CurrentPrice.IsPositive() {
			m.l.Warn("skip rebalance sell without price", zap.String("symbol", symbol))
			continue
		}
		qty := amount.Div(pos.CurrentPrice)
		if qty.GreaterThan(pos.Quantity) {
			qty = pos.Quantity
		}
		sells = append(sells, domain.Rebalance{
			Symbol: symbol,
			Side:   domain.SideSell,
			Amount: amount,
			Qty:    qty,
			Reason: reason,
		})
	}

	return append(sells, buys...)
}

// UpdateTargetAllocation replaces target weights after validating that they
// are non-negative and sum to 1 within one percent.
func (m *Manager) UpdateTargetAllocation(targets map[string]decimal.Decimal) error {
	if len(targets) == 0 {
		return errors.Wrap(ErrInvalidAllocation, "no target weights")
	}

	sum := decimal.Zero
	for symbol, w := range targets {
		if w.IsNegative() {
			return errors.Wrapf(ErrInvalidAllocation, "negative weight %s for %s", w.String(), symbol)
		}
		sum = sum.Add(w)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(allocationTolerance) {
		return errors.Wrapf(ErrInvalidAllocation, "weights sum to %s", sum.String())
	}

	copied := make(map[string]decimal.Decimal, len(targets))
	for symbol, w := range targets {
		copied[symbol] = w
	}
	m.targets = copied

	return nil
}

func (m *Manager) sortedTargets() []string {
	symbols := make([]string, 0, len(m.targets))
	for s := range m.targets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
