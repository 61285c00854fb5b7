package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CashSymbol is the synthetic symbol used for the cash balance in allocations
// and for cash-funded buys.
const CashSymbol = "CASH"

// Position holding of a single instrument.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// PositionUpdate live data for a symbol supplied once per tick.
type PositionUpdate struct {
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// MarketSnapshot holdings and cash read from the broker at tick start.
type MarketSnapshot struct {
	Positions map[string]PositionUpdate
	Cash      decimal.Decimal
}

// NewPosition builds a validated position from a live update.
func NewPosition(symbol string, u PositionUpdate) (Position, error) {
	if symbol == "" {
		return Position{}, errors.New("position symbol is required")
	}
	if u.Quantity.IsNegative() {
		return Position{}, errors.Errorf("quantity must not be negative, got %s", u.Quantity.String())
	}
	if u.AvgPrice.IsNegative() {
		return Position{}, errors.Errorf("avg price must not be negative, got %s", u.AvgPrice.String())
	}
	if u.CurrentPrice.IsNegative() {
		return Position{}, errors.Errorf("current price must not be negative, got %s", u.CurrentPrice.String())
	}

	avg := u.AvgPrice
	if u.Quantity.IsZero() {
		avg = decimal.Zero
	}

	return Position{
		Symbol:       symbol,
		Quantity:     u.Quantity,
		AvgPrice:     avg,
		CurrentPrice: u.CurrentPrice,
	}, nil
}

// Value returns quantity multiplied by current price.
func (p Position) Value() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// IsEmpty reports whether nothing is held.
func (p Position) IsEmpty() bool {
	return !p.Quantity.IsPositive()
}

// ProfitPercent returns the unrealised gain over cost basis in percent.
// A zero cost basis yields zero.
func (p Position) ProfitPercent() decimal.Decimal {
	return PercentageDiff(p.CurrentPrice, p.AvgPrice)
}

// ProfitFraction returns (current-avg)/avg, zero when avg is zero.
func (p Position) ProfitFraction() decimal.Decimal {
	if p.AvgPrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AvgPrice).Div(p.AvgPrice)
}

// InProfit reports whether the position is held and not trading below cost.
func (p Position) InProfit() bool {
	return p.Quantity.IsPositive() && p.CurrentPrice.GreaterThanOrEqual(p.AvgPrice)
}

// BelowAverage reports whether the current price is under cost basis.
func (p Position) BelowAverage() bool {
	return p.CurrentPrice.LessThan(p.AvgPrice)
}

// ApplyBuy adds quantity bought at price and recomputes the volume-weighted
// cost basis.
func (p *Position) ApplyBuy(qty, price decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.Errorf("buy quantity must be positive, got %s", qty.String())
	}
	if !price.IsPositive() {
		return errors.Errorf("buy price must be positive, got %s", price.String())
	}

	newQty := p.Quantity.Add(qty)
	cost := p.AvgPrice.Mul(p.Quantity).Add(price.Mul(qty))
	p.AvgPrice = cost.Div(newQty)
	p.Quantity = newQty
	p.CurrentPrice = price

	return nil
}

// ApplySell removes quantity; the cost basis is kept until the position is
// closed and reset to zero afterwards.
func (p *Position) ApplySell(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.Errorf("sell quantity must be positive, got %s", qty.String())
	}
	if qty.GreaterThan(p.Quantity) {
		return errors.Errorf("cannot sell %s %s, holding %s", qty.String(), p.Symbol, p.Quantity.String())
	}

	p.Quantity = p.Quantity.Sub(qty)
	if p.Quantity.IsZero() {
		p.AvgPrice = decimal.Zero
	}

	return nil
}
