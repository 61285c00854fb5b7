// Package trader places orders on Binance or on a simulated wallet and reads
// back holdings with their cost basis.
package trader

import (
	"context"
	"sort"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/pkg/retrier"
	"go.uber.org/zap"
)

const (
	binanceQuotePrecision    = 2
	binanceQuantityPrecision = 6
	binanceTradeHistoryLimit = 1000
)

// BinanceTrader trades spot symbols quoted in a single currency.
type BinanceTrader struct {
	l      *zap.Logger
	client *binance.Client
	quote  string
	retry  *retrier.Retrier
}

// NewBinanceTrader creates a spot trader. Reads are retried with retry,
// orders are sent once.
func NewBinanceTrader(l *zap.Logger, client *binance.Client, quote string, retry *retrier.Retrier) (*BinanceTrader, error) {
	if client == nil {
		return nil, errors.New("binance client is required")
	}
	if quote == "" {
		return nil, errors.New("quote currency is required")
	}
	if l == nil {
		l = zap.NewNop()
	}
	if retry == nil {
		retry = retrier.New(retrier.WithRetryIf(IsRetryable))
	}

	return &BinanceTrader{l: l, client: client, quote: quote, retry: retry}, nil
}

// IsRetryable reports whether a Binance error is transient. API errors with
// a code are rejections and are not retried.
func IsRetryable(err error) bool {
	var apiErr *common.APIError
	return !errors.As(err, &apiErr)
}

func (t *BinanceTrader) pair(symbol string) domain.Pair {
	return domain.Pair{From: symbol, To: t.quote}
}

// Buy places a market order spending amount of the quote currency.
func (t *BinanceTrader) Buy(ctx context.Context, symbol string, amount decimal.Decimal, clientOrderID string) error {
	amount = amount.RoundFloor(binanceQuotePrecision)
	if !amount.IsPositive() {
		return errors.Errorf("buy amount for %s rounds to zero", symbol)
	}

	order, err := t.client.NewCreateOrderService().Symbol(t.pair(symbol).Symbol()).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeMarket).
		QuoteOrderQty(amount.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "binance buy %s", symbol)
	}

	t.l.Info("Binance buy placed",
		zap.String("id", clientOrderID),
		zap.String("symbol", symbol),
		zap.String("quote_amount", amount.String()),
		zap.String("status", string(order.Status)))

	return nil
}

// Sell places a market order for qty units of symbol.
func (t *BinanceTrader) Sell(ctx context.Context, symbol string, qty decimal.Decimal, clientOrderID string) error {
	qty = qty.RoundFloor(binanceQuantityPrecision)
	if !qty.IsPositive() {
		return errors.Errorf("sell quantity for %s rounds to zero", symbol)
	}

	order, err := t.client.NewCreateOrderService().Symbol(t.pair(symbol).Symbol()).
		Side(binance.SideTypeSell).Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "binance sell %s", symbol)
	}

	t.l.Info("Binance sell placed",
		zap.String("id", clientOrderID),
		zap.String("symbol", symbol),
		zap.String("qty", qty.String()),
		zap.String("status", string(order.Status)))

	return nil
}

// Snapshot reads free balances, last prices and trade-history cost basis of
// symbols. The quote currency balance is reported as cash.
func (t *BinanceTrader) Snapshot(ctx context.Context, symbols []string) (domain.MarketSnapshot, error) {
	account, err := retrier.DoWithData(t.retry, ctx, func(ctx context.Context) (*binance.Account, error) {
		return t.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return domain.MarketSnapshot{}, errors.Wrap(err, "failed to get binance account balance")
	}

	balances := make(map[string]decimal.Decimal, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return domain.MarketSnapshot{}, errors.Wrapf(err, "failed to parse %s balance", b.Asset)
		}
		balances[b.Asset] = free
	}

	snapshot := domain.MarketSnapshot{
		Positions: make(map[string]domain.PositionUpdate, len(symbols)),
		Cash:      balances[t.quote],
	}

	for _, symbol := range symbols {
		if symbol == domain.CashSymbol || symbol == t.quote {
			continue
		}

		price, err := t.lastPrice(ctx, symbol)
		if err != nil {
			return domain.MarketSnapshot{}, err
		}

		qty := balances[symbol]
		avg := decimal.Zero
		if qty.IsPositive() {
			avg, err = t.averageCost(ctx, symbol)
			if err != nil {
				return domain.MarketSnapshot{}, err
			}
		}

		snapshot.Positions[symbol] = domain.PositionUpdate{Quantity: qty, AvgPrice: avg, CurrentPrice: price}
	}

	return snapshot, nil
}

func (t *BinanceTrader) lastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := t.pair(symbol)
	prices, err := retrier.DoWithData(t.retry, ctx, func(ctx context.Context) ([]*binance.SymbolPrice, error) {
		return t.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "list prices for %s", pair.String())
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("binance API returned empty prices for %s", pair.String())
	}

	price, err := decimal.NewFromString(prices[0].Price)
	return price, errors.Wrapf(err, "parse price of %s", pair.String())
}

func (t *BinanceTrader) averageCost(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := t.pair(symbol)
	trades, err := retrier.DoWithData(t.retry, ctx, func(ctx context.Context) ([]*binance.TradeV3, error) {
		return t.client.NewListTradesService().Symbol(pair.Symbol()).Limit(binanceTradeHistoryLimit).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to list binance trades for %s", pair.String())
	}

	fills := make([]fill, 0, len(trades))
	for _, tr := range trades {
		qty, err := decimal.NewFromString(tr.Quantity)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "failed to parse trade quantity")
		}
		price, err := decimal.NewFromString(tr.Price)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "failed to parse trade price")
		}
		fills = append(fills, fill{Qty: qty, Price: price, IsBuy: tr.IsBuyer, Time: tr.Time})
	}

	pos := costBasis(symbol, fills)
	if pos.IsEmpty() {
		t.l.Warn("trade history does not cover holding, cost basis unknown", zap.String("symbol", symbol))
	}

	return pos.AvgPrice, nil
}

// fill executed trade used to rebuild cost basis.
type fill struct {
	Qty   decimal.Decimal
	Price decimal.Decimal
	IsBuy bool
	// Time in unix milliseconds.
	Time int64
}

// costBasis replays fills in time order. Buys move the volume-weighted
// average, sells reduce quantity and a fully closed position starts over.
// Sells of units bought before the history window are ignored.
func costBasis(symbol string, fills []fill) domain.Position {
	ordered := append([]fill(nil), fills...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time < ordered[j].Time
	})

	pos := domain.Position{Symbol: symbol}
	for _, f := range ordered {
		if !f.Qty.IsPositive() {
			continue
		}
		if f.IsBuy {
			_ = pos.ApplyBuy(f.Qty, f.Price)
			continue
		}
		if pos.IsEmpty() {
			continue
		}
		qty := decimal.Min(f.Qty, pos.Quantity)
		_ = pos.ApplySell(qty)
	}

	return pos
}
