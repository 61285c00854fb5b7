package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ActionKind identifies the variant of a proposed trade action.
type ActionKind int

const (
	ActionKindProfitTaking ActionKind = iota
	ActionKindDipBuying
	ActionKindInterestReinvest
	ActionKindRebalance
)

// action kind string constants to avoid magic strings
const (
	actionKindStringProfitTaking     = "profit_taking"
	actionKindStringDipBuying        = "dip_buying"
	actionKindStringInterestReinvest = "interest_reinvest"
	actionKindStringRebalance        = "rebalance"
)

// String returns the string representation of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionKindProfitTaking:
		return actionKindStringProfitTaking
	case ActionKindDipBuying:
		return actionKindStringDipBuying
	case ActionKindInterestReinvest:
		return actionKindStringInterestReinvest
	case ActionKindRebalance:
		return actionKindStringRebalance
	default:
		return "unknown"
	}
}

// Side direction of a rebalance trade.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Action is a proposed trade. The set of implementations is closed: only the
// variants declared in this package satisfy it.
type Action interface {
	Kind() ActionKind
	// Symbols lists the instruments touched, sell leg first.
	Symbols() []string
	// Total is the currency amount the action moves.
	Total() decimal.Decimal
	// Why is the human-readable reason.
	Why() string
	String() string

	isAction()
}

// ProfitTaking sells the whole primary position and reinvests the profit.
// An empty BuySymbol leaves the proceeds in cash.
type ProfitTaking struct {
	SellSymbol string
	SellQty    decimal.Decimal
	BuySymbol  string
	Amount     decimal.Decimal
	Reason     string
}

func (ProfitTaking) isAction() {}
func (ProfitTaking) Kind() ActionKind { return ActionKindProfitTaking }
func (a ProfitTaking) Total() decimal.Decimal { return a.Amount }
func (a ProfitTaking) Why() string { return a.Reason }

func (a ProfitTaking) Symbols() []string {
	if a.BuySymbol == "" {
		return []string{a.SellSymbol}
	}
	return []string{a.SellSymbol, a.BuySymbol}
}

func (a ProfitTaking) String() string {
	return fmt.Sprintf("%s: sell %s %s, buy %s for %s (%s)",
		a.Kind(), a.SellQty.String(), a.SellSymbol, a.BuySymbol, a.Amount.String(), a.Reason)
}

// DipBuying liquidates part of a funding asset to accumulate the primary asset.
// SellSymbol equal to CashSymbol means the buy is paid from cash.
type DipBuying struct {
	SellSymbol string
	SellAmount decimal.Decimal
	// SellQty is SellAmount converted to funding asset units at snapshot price.
	SellQty    decimal.Decimal
	BuySymbol  string
	SplitCount int
	Reason     string
}

func (DipBuying) isAction() {}
func (DipBuying) Kind() ActionKind { return ActionKindDipBuying }
func (a DipBuying) Total() decimal.Decimal { return a.SellAmount }
func (a DipBuying) Why() string { return a.Reason }

// FromCash reports whether the buy is funded directly from cash.
func (a DipBuying) FromCash() bool {
	return a.SellSymbol == CashSymbol
}

func (a DipBuying) Symbols() []string {
	return []string{a.SellSymbol, a.BuySymbol}
}

func (a DipBuying) String() string {
	return fmt.Sprintf("%s: %s -> %s amount %s (1/%d) (%s)",
		a.Kind(), a.SellSymbol, a.BuySymbol, a.SellAmount.String(), a.SplitCount, a.Reason)
}

// InterestReinvest buys the interest asset with accrued interest.
type InterestReinvest struct {
	BuySymbol string
	Amount    decimal.Decimal
	Reason    string
}

func (InterestReinvest) isAction() {}
func (InterestReinvest) Kind() ActionKind { return ActionKindInterestReinvest }
func (a InterestReinvest) Total() decimal.Decimal { return a.Amount }
func (a InterestReinvest) Why() string { return a.Reason }
func (a InterestReinvest) Symbols() []string { return []string{a.BuySymbol} }

func (a InterestReinvest) String() string {
	return fmt.Sprintf("%s: buy %s for %s (%s)", a.Kind(), a.BuySymbol, a.Amount.String(), a.Reason)
}

// Rebalance moves a single symbol toward its target weight.
type Rebalance struct {
	Symbol string
	Side   Side
	Amount decimal.Decimal
	// Qty is the sell quantity at snapshot price; zero for buys.
	Qty    decimal.Decimal
	Reason string
}

func (Rebalance) isAction() {}
func (Rebalance) Kind() ActionKind { return ActionKindRebalance }
func (a Rebalance) Total() decimal.Decimal { return a.Amount }
func (a Rebalance) Why() string { return a.Reason }
func (a Rebalance) Symbols() []string { return []string{a.Symbol} }

func (a Rebalance) String() string {
	return fmt.Sprintf("%s: %s %s amount %s (%s)", a.Kind(), a.Side, a.Symbol, a.Amount.String(), a.Reason)
}
