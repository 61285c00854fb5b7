package trader

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/internal/storage/simstate"
	"go.uber.org/zap"
)

// mockPricer serves fixed prices per base symbol.
type mockPricer struct {
	prices map[string]decimal.Decimal
}

func (m *mockPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	p, ok := m.prices[pair.From]
	if !ok {
		return decimal.Zero, errors.Errorf("no price for %s", pair.String())
	}
	return p, nil
}

func newPricer() *mockPricer {
	return &mockPricer{prices: map[string]decimal.Decimal{
		"TQQQ": decimal.NewFromInt(50),
		"SGOV": decimal.NewFromInt(100),
	}}
}

func newTestTrader(t *testing.T, pricer Pricer, store *simstate.Store) *SimulateTrader {
	t.Helper()
	tr, err := NewSimulateTrader(zap.NewNop(), "USD", decimal.NewFromInt(10000), pricer, store)
	require.NoError(t, err)
	return tr
}

func TestSimulateTrader_NewSimulateTrader(t *testing.T) {
	_, err := NewSimulateTrader(zap.NewNop(), "USD", decimal.NewFromInt(1), nil, nil)
	require.Error(t, err)

	_, err = NewSimulateTrader(zap.NewNop(), "USD", decimal.NewFromInt(-1), newPricer(), nil)
	require.Error(t, err)

	tr := newTestTrader(t, newPricer(), nil)
	assert.True(t, tr.Cash().Equal(decimal.NewFromInt(10000)))
	_, ok := tr.Position("TQQQ")
	assert.False(t, ok)
}

func TestSimulateTrader_FullTradeCycle(t *testing.T) {
	pricer := newPricer()
	tr := newTestTrader(t, pricer, nil)
	ctx := context.Background()

	require.NoError(t, tr.Buy(ctx, "TQQQ", decimal.NewFromInt(1000), "buy-1"))
	pos, ok := tr.Position("TQQQ")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(50)))
	assert.True(t, tr.Cash().Equal(decimal.NewFromInt(9000)))

	pricer.prices["TQQQ"] = decimal.NewFromInt(25)
	require.NoError(t, tr.Buy(ctx, "TQQQ", decimal.NewFromInt(500), "buy-2"))
	pos, _ = tr.Position("TQQQ")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(40)))
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(375).Div(decimal.NewFromInt(10))), "avg %s", pos.AvgPrice.String())

	pricer.prices["TQQQ"] = decimal.NewFromInt(60)
	require.NoError(t, tr.Sell(ctx, "TQQQ", decimal.NewFromInt(10), "sell-1"))
	pos, _ = tr.Position("TQQQ")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(30)))
	assert.True(t, pos.AvgPrice.Equal(decimal.RequireFromString("37.5")), "partial sell keeps cost basis")
	assert.True(t, tr.Cash().Equal(decimal.NewFromInt(9100)))

	require.NoError(t, tr.Sell(ctx, "TQQQ", decimal.NewFromInt(30), "sell-2"))
	pos, _ = tr.Position("TQQQ")
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.AvgPrice.IsZero())
	assert.True(t, tr.Cash().Equal(decimal.NewFromInt(10900)))
}

func TestSimulateTrader_InsufficientBalance(t *testing.T) {
	tr := newTestTrader(t, newPricer(), nil)
	ctx := context.Background()

	require.Error(t, tr.Buy(ctx, "TQQQ", decimal.NewFromInt(20000), "too-much"))
	require.Error(t, tr.Sell(ctx, "TQQQ", decimal.NewFromInt(1), "nothing-held"))

	require.NoError(t, tr.Buy(ctx, "TQQQ", decimal.NewFromInt(100), "buy"))
	require.Error(t, tr.Sell(ctx, "TQQQ", decimal.NewFromInt(3), "oversell"))
	require.Error(t, tr.Buy(ctx, "UNKNOWN", decimal.NewFromInt(100), "no-price"))
	require.Error(t, tr.Buy(ctx, "TQQQ", decimal.Zero, "zero"))

	assert.True(t, tr.Cash().Equal(decimal.NewFromInt(9900)), "failed orders leave the wallet untouched")
}

func TestSimulateTrader_Snapshot(t *testing.T) {
	tr := newTestTrader(t, newPricer(), nil)
	ctx := context.Background()
	require.NoError(t, tr.Buy(ctx, "SGOV", decimal.NewFromInt(1000), "buy"))

	snap, err := tr.Snapshot(ctx, []string{"TQQQ", domain.CashSymbol})
	require.NoError(t, err)
	require.Len(t, snap.Positions, 2)
	assert.True(t, snap.Cash.Equal(decimal.NewFromInt(9000)))

	assert.True(t, snap.Positions["SGOV"].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, snap.Positions["SGOV"].CurrentPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, snap.Positions["TQQQ"].Quantity.IsZero())
	assert.True(t, snap.Positions["TQQQ"].CurrentPrice.Equal(decimal.NewFromInt(50)))

	_, err = tr.Snapshot(ctx, []string{"UNKNOWN"})
	require.Error(t, err)
}

func TestSimulateTrader_RestoresState(t *testing.T) {
	store, err := simstate.NewStore(t.TempDir(), "paper test")
	require.NoError(t, err)
	ctx := context.Background()

	tr := newTestTrader(t, newPricer(), store)
	require.NoError(t, tr.Buy(ctx, "TQQQ", decimal.NewFromInt(1000), "buy"))

	restored := newTestTrader(t, newPricer(), store)
	assert.True(t, restored.Cash().Equal(decimal.NewFromInt(9000)))
	pos, ok := restored.Position("TQQQ")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, pos.AvgPrice.Equal(decimal.NewFromInt(50)))
}
