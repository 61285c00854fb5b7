package portfolio

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"go.uber.org/zap"
)

var epsilon = decimal.RequireFromString("0.000001")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestManager(t *testing.T, targets map[string]decimal.Decimal) *Manager {
	t.Helper()
	m, err := NewManager(zap.NewNop(), targets, decimal.NewFromInt(100))
	require.NoError(t, err)
	return m
}

func TestManager_EndToEndRebalance(t *testing.T) {
	m := newTestManager(t, map[string]decimal.Decimal{"X": d("0.5"), "Y": d("0.5")})
	require.NoError(t, m.UpdateCash(decimal.Zero))
	require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
		"X": {Quantity: d("10"), AvgPrice: d("10"), CurrentPrice: d("10")},
		"Y": {Quantity: d("0"), CurrentPrice: d("20")},
	}))

	require.True(t, m.TotalValue().Equal(d("100")))

	alloc := m.CurrentAllocation()
	require.True(t, alloc["X"].Equal(d("1")))
	require.True(t, alloc["Y"].IsZero())
	require.True(t, alloc[domain.CashSymbol].IsZero())

	drift := m.AllocationDrift()
	require.True(t, drift["X"].Equal(d("0.5")))
	require.True(t, drift["Y"].Equal(d("-0.5")))

	require.True(t, m.NeedsRebalancing(d("0.05")))

	trades := m.CalculateRebalancingTrades()
	require.Len(t, trades, 2)

	require.Equal(t, "X", trades[0].Symbol)
	require.Equal(t, domain.SideSell, trades[0].Side)
	require.True(t, trades[0].Amount.Equal(d("50")))
	require.True(t, trades[0].Qty.Equal(d("5")))
	require.Equal(t, "X: 100.0% -> 50.0%", trades[0].Reason)

	require.Equal(t, "Y", trades[1].Symbol)
	require.Equal(t, domain.SideBuy, trades[1].Side)
	require.True(t, trades[1].Amount.Equal(d("50")))
	require.Equal(t, "Y: 0.0% -> 50.0%", trades[1].Reason)
}

func TestManager_UpdatePositionsKeepsAbsentSymbols(t *testing.T) {
	m := newTestManager(t, map[string]decimal.Decimal{"A": d("1")})
	require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
		"A": {Quantity: d("1"), AvgPrice: d("5"), CurrentPrice: d("6")},
		"B": {Quantity: d("2"), AvgPrice: d("3"), CurrentPrice: d("3")},
	}))
	require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
		"A": {Quantity: d("3"), AvgPrice: d("5"), CurrentPrice: d("7")},
	}))

	a, ok := m.Position("A")
	require.True(t, ok)
	require.True(t, a.Quantity.Equal(d("3")))

	b, ok := m.Position("B")
	require.True(t, ok)
	require.True(t, b.Quantity.Equal(d("2")), "absent symbol keeps last state")

	require.Error(t, m.UpdatePositions(map[string]domain.PositionUpdate{"C": {Quantity: d("-1")}}))
	require.Error(t, m.UpdateCash(d("-1")))
}

func TestManager_ZeroTotalGivesZeroAllocation(t *testing.T) {
	m := newTestManager(t, map[string]decimal.Decimal{"A": d("0.6"), "B": d("0.4")})
	require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
		"A": {Quantity: d("0"), CurrentPrice: d("10")},
		"B": {Quantity: d("5"), CurrentPrice: d("0")},
	}))

	for symbol, w := range m.CurrentAllocation() {
		require.True(t, w.IsZero(), "%s weight must be zero", symbol)
	}
}

func TestManager_AllocationSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	targets := map[string]decimal.Decimal{"A": d("0.25"), "B": d("0.25"), "C": d("0.5")}

	for i := 0; i < 50; i++ {
		m := newTestManager(t, targets)
		require.NoError(t, m.UpdateCash(decimal.NewFromInt(rng.Int63n(1000))))
		updates := make(map[string]domain.PositionUpdate)
		for _, s := range []string{"A", "B", "C"} {
			updates[s] = domain.PositionUpdate{
				Quantity:     decimal.NewFromInt(rng.Int63n(50)),
				AvgPrice:     decimal.NewFromInt(1 + rng.Int63n(100)),
				CurrentPrice: decimal.NewFromInt(1 + rng.Int63n(100)),
			}
		}
		require.NoError(t, m.UpdatePositions(updates))

		sum := decimal.Zero
		for _, w := range m.CurrentAllocation() {
			sum = sum.Add(w)
		}
		if m.TotalValue().IsPositive() {
			require.True(t, sum.Sub(decimal.NewFromInt(1)).Abs().LessThan(epsilon), "iteration %d sum %s", i, sum.String())
		} else {
			require.True(t, sum.IsZero())
		}
	}
}

func TestManager_NeedsRebalancingMatchesMaxDrift(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	thresholds := []decimal.Decimal{d("0.01"), d("0.05"), d("0.1"), d("0.25")}

	for i := 0; i < 100; i++ {
		m := newTestManager(t, map[string]decimal.Decimal{"A": d("0.3"), "B": d("0.7")})
		require.NoError(t, m.UpdateCash(decimal.NewFromInt(rng.Int63n(100))))
		require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
			"A": {Quantity: decimal.NewFromInt(rng.Int63n(20)), CurrentPrice: decimal.NewFromInt(1 + rng.Int63n(30))},
			"B": {Quantity: decimal.NewFromInt(rng.Int63n(20)), CurrentPrice: decimal.NewFromInt(1 + rng.Int63n(30))},
		}))

		maxDrift := decimal.Zero
		for _, dr := range m.AllocationDrift() {
			if dr.Abs().GreaterThan(maxDrift) {
				maxDrift = dr.Abs()
			}
		}

		for _, th := range thresholds {
			require.Equal(t, maxDrift.GreaterThan(th), m.NeedsRebalancing(th),
				fmt.Sprintf("iteration %d threshold %s drift %s", i, th.String(), maxDrift.String()))
		}
	}
}

func TestManager_NoTradesWithinOnePoint(t *testing.T) {
	m := newTestManager(t, map[string]decimal.Decimal{"A": d("0.5"), "B": d("0.5")})
	require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
		"A": {Quantity: d("505"), CurrentPrice: d("1")},
		"B": {Quantity: d("495"), CurrentPrice: d("1")},
	}))

	require.Empty(t, m.CalculateRebalancingTrades())
}

func TestManager_CashTargetIsNotTraded(t *testing.T) {
	m := newTestManager(t, map[string]decimal.Decimal{"A": d("0.5"), domain.CashSymbol: d("0.5")})
	require.NoError(t, m.UpdateCash(d("0")))
	require.NoError(t, m.UpdatePositions(map[string]domain.PositionUpdate{
		"A": {Quantity: d("10"), CurrentPrice: d("10")},
	}))

	trades := m.CalculateRebalancingTrades()
	require.Len(t, trades, 1)
	require.Equal(t, "A", trades[0].Symbol)
	require.Equal(t, domain.SideSell, trades[0].Side)
}

func TestManager_UpdateTargetAllocation(t *testing.T) {
	tests := []struct {
		name    string
		targets map[string]decimal.Decimal
		valid   bool
	}{
		{"exact", map[string]decimal.Decimal{"A": d("0.6"), "B": d("0.4")}, true},
		{"within tolerance", map[string]decimal.Decimal{"A": d("0.6"), "B": d("0.405")}, true},
		{"over", map[string]decimal.Decimal{"A": d("0.6"), "B": d("0.42")}, false},
		{"under", map[string]decimal.Decimal{"A": d("0.5"), "B": d("0.3")}, false},
		{"negative", map[string]decimal.Decimal{"A": d("1.2"), "B": d("-0.2")}, false},
		{"empty", map[string]decimal.Decimal{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, map[string]decimal.Decimal{"A": d("1")})
			err := m.UpdateTargetAllocation(tt.targets)
			if tt.valid {
				require.NoError(t, err)
				require.Len(t, m.Targets(), len(tt.targets))
				return
			}
			require.True(t, errors.Is(err, ErrInvalidAllocation), "got %v", err)
			kept := m.Targets()
			require.Len(t, kept, 1, "failed update keeps old targets")
			require.True(t, kept["A"].Equal(d("1")))
		})
	}
}

func TestNewManager_RejectsInvalidTargets(t *testing.T) {
	_, err := NewManager(zap.NewNop(), map[string]decimal.Decimal{"A": d("0.2")}, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidAllocation)
}
