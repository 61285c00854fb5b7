package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunState counters carried from one tick to the next by the polling loop.
type RunState struct {
	Ticks       int
	Trades      int
	EntryValue  decimal.Decimal
	PeakValue   decimal.Decimal
	MaxDrawdown decimal.Decimal // percent
	// LastInterestMonth is the first day of the month interest was last reinvested.
	LastInterestMonth time.Time
}

// Observe records the portfolio value seen at a tick and returns the updated state.
func (s RunState) Observe(totalValue decimal.Decimal) RunState {
	s.Ticks++
	if s.EntryValue.IsZero() {
		s.EntryValue = totalValue
	}
	if totalValue.GreaterThan(s.PeakValue) {
		s.PeakValue = totalValue
	}
	if s.PeakValue.IsPositive() {
		drawdown := s.PeakValue.Sub(totalValue).Div(s.PeakValue).Mul(hundred)
		if drawdown.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = drawdown
		}
	}
	return s
}

// ReturnPercent change of value since the first observed tick.
func (s RunState) ReturnPercent(totalValue decimal.Decimal) decimal.Decimal {
	return PercentageDiff(totalValue, s.EntryValue)
}

// InterestDue reports whether interest has not yet been reinvested in now's month.
func (s RunState) InterestDue(now time.Time) bool {
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.LastInterestMonth.IsZero() || s.LastInterestMonth.Before(month)
}

// MarkInterest records that interest was reinvested during now's month.
func (s RunState) MarkInterest(now time.Time) RunState {
	s.LastInterestMonth = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s
}
