package trader

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/internal/storage/simstate"
	"go.uber.org/zap"
)

const quantityPrecision = 8

// Pricer defines an interface for getting the price of a trading pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// SimulateTrader is a paper-trading wallet filled at live prices.
type SimulateTrader struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	quote      string
	cash       decimal.Decimal
	positions  map[string]domain.Position
	pricer     Pricer
	stateStore *simstate.Store
}

// NewSimulateTrader creates a wallet holding initialCash of the quote
// currency. Saved state in store, when present, replaces the initial wallet.
func NewSimulateTrader(logger *zap.Logger, quote string, initialCash decimal.Decimal, pricer Pricer, store *simstate.Store) (*SimulateTrader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pricer == nil {
		return nil, errors.New("pricer is required for SimulateTrader")
	}
	if quote == "" {
		return nil, errors.New("quote currency is required")
	}
	if initialCash.IsNegative() {
		return nil, errors.Errorf("initial cash must not be negative, got %s", initialCash.String())
	}

	trader := &SimulateTrader{
		logger:     logger,
		quote:      quote,
		cash:       initialCash,
		positions:  make(map[string]domain.Position),
		pricer:     pricer,
		stateStore: store,
	}
	if err := trader.restoreState(); err != nil {
		logger.Warn("failed to restore simulate state", zap.Error(err))
	}

	logger.Info("simulate init",
		zap.String("quote", quote),
		zap.String("cash", trader.cash.String()),
		zap.Int("positions", len(trader.positions)))

	return trader, nil
}

// Buy spends amount of cash on symbol at the current price.
func (t *SimulateTrader) Buy(ctx context.Context, symbol string, amount decimal.Decimal, clientOrderID string) error {
	if !amount.IsPositive() {
		return errors.Errorf("buy amount must be positive, got %s", amount.String())
	}

	price, err := t.price(ctx, symbol)
	if err != nil {
		return errors.Wrap(err, "failed to get price for simulated buy")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cash.LessThan(amount) {
		return errors.Errorf("insufficient %s balance: have %s need %s", t.quote, t.cash.String(), amount.String())
	}

	qty := amount.Div(price).RoundFloor(quantityPrecision)
	if !qty.IsPositive() {
		return errors.Errorf("amount %s buys no %s at %s", amount.String(), symbol, price.String())
	}

	pos, ok := t.positions[symbol]
	if !ok {
		pos = domain.Position{Symbol: symbol}
	}
	if err := pos.ApplyBuy(qty, price); err != nil {
		return errors.Wrap(err, "apply simulated buy")
	}
	t.positions[symbol] = pos
	t.cash = t.cash.Sub(amount)
	t.persist()

	t.logger.Info("Simulated buy executed",
		zap.String("id", clientOrderID),
		zap.String("symbol", symbol),
		zap.String("qty", qty.String()),
		zap.String("price", price.String()),
		zap.String("cash", t.cash.String()))

	return nil
}

// Sell sells qty units of symbol at the current price.
func (t *SimulateTrader) Sell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) error {
	if !qty.IsPositive() {
		return errors.Errorf("sell quantity must be positive, got %s", qty.String())
	}

	price, err := t.price(ctx, symbol)
	if err != nil {
		return errors.Wrap(err, "failed to get price for simulated sell")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		return errors.Errorf("insufficient %s balance: have 0 need %s", symbol, qty.String())
	}
	if err := pos.ApplySell(qty); err != nil {
		return errors.Wrap(err, "apply simulated sell")
	}
	pos.CurrentPrice = price
	t.positions[symbol] = pos
	t.cash = t.cash.Add(qty.Mul(price))
	t.persist()

	t.logger.Info("Simulated sell executed",
		zap.String("id", clientOrderID),
		zap.String("symbol", symbol),
		zap.String("qty", qty.String()),
		zap.String("price", price.String()),
		zap.String("cash", t.cash.String()))

	return nil
}

// Snapshot prices every held symbol plus the requested ones and returns the
// wallet as live position data.
func (t *SimulateTrader) Snapshot(ctx context.Context, symbols []string) (domain.MarketSnapshot, error) {
	t.mu.RLock()
	held := make(map[string]domain.Position, len(t.positions))
	for s, p := range t.positions {
		held[s] = p
	}
	cash := t.cash
	t.mu.RUnlock()

	all := make(map[string]struct{}, len(held)+len(symbols))
	for s := range held {
		all[s] = struct{}{}
	}
	for _, s := range symbols {
		if s != domain.CashSymbol {
			all[s] = struct{}{}
		}
	}

	names := make([]string, 0, len(all))
	for s := range all {
		names = append(names, s)
	}
	sort.Strings(names)

	snapshot := domain.MarketSnapshot{
		Positions: make(map[string]domain.PositionUpdate, len(names)),
		Cash:      cash,
	}
	for _, s := range names {
		price, err := t.price(ctx, s)
		if err != nil {
			return domain.MarketSnapshot{}, errors.Wrapf(err, "price %s", s)
		}
		pos := held[s]
		snapshot.Positions[s] = domain.PositionUpdate{
			Quantity:     pos.Quantity,
			AvgPrice:     pos.AvgPrice,
			CurrentPrice: price,
		}
	}

	return snapshot, nil
}

// Cash returns the quote currency balance.
func (t *SimulateTrader) Cash() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cash
}

// Position returns the holding of symbol.
func (t *SimulateTrader) Position(symbol string) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	return p, ok
}

func (t *SimulateTrader) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := t.pricer.GetPrice(ctx, domain.Pair{From: symbol, To: t.quote})
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive price %s for %s", price.String(), symbol)
	}
	return price, nil
}

func (t *SimulateTrader) restoreState() error {
	if t.stateStore == nil {
		return nil
	}
	state, err := t.stateStore.Load()
	if err != nil || state == nil {
		return err
	}

	cash := decimal.Zero
	if state.Cash != "" {
		cash, err = decimal.NewFromString(state.Cash)
		if err != nil {
			return errors.Wrap(err, "decode cash")
		}
	}

	positions := make(map[string]domain.Position, len(state.Positions))
	for symbol, sp := range state.Positions {
		pos, err := sp.ToPosition(symbol)
		if err != nil {
			return err
		}
		positions[symbol] = pos
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cash = cash
	t.positions = positions

	return nil
}

// persist must be called with t.mu held.
func (t *SimulateTrader) persist() {
	if t.stateStore == nil {
		return
	}

	state := simstate.State{
		Cash:      t.cash.String(),
		Positions: make(map[string]simstate.StoredPosition, len(t.positions)),
	}
	for symbol, pos := range t.positions {
		state.Positions[symbol] = simstate.NewStoredPosition(pos)
	}

	if err := t.stateStore.Save(state); err != nil {
		t.logger.Warn("failed to persist simulate state", zap.Error(err))
	}
}
