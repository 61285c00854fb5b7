// Package pricer reads last-trade prices from Binance.
package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"github.com/vadiminshakov/rebalancer/pkg/retrier"
)

// BinancePricer fetches prices from the Binance public API. No API keys are
// required.
type BinancePricer struct {
	client *binance.Client
	retry  *retrier.Retrier
}

// NewBinancePricer creates a pricer backed by client.
func NewBinancePricer(client *binance.Client, retry *retrier.Retrier) *BinancePricer {
	if retry == nil {
		retry = retrier.New()
	}
	return &BinancePricer{client: client, retry: retry}
}

// GetPrice returns the last price of the pair.
func (p *BinancePricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := retrier.DoWithData(p.retry, ctx, func(ctx context.Context) ([]*binance.SymbolPrice, error) {
		return p.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "list prices for %s", pair.String())
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("binance API returned empty prices for %s", pair.String())
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse price of %s", pair.String())
	}

	return price, nil
}
