package domain

import "github.com/shopspring/decimal"

const percentageMultiplier = 100

var hundred = decimal.NewFromInt(percentageMultiplier)

// PercentageDiff returns percentage difference between current and reference values.
func PercentageDiff(current, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return current.Sub(reference).Div(reference).Mul(hundred)
}

// FractionToPercent converts a weight such as 0.25 to 25.
func FractionToPercent(f decimal.Decimal) decimal.Decimal {
	return f.Mul(hundred)
}

// FloorUnits floors a currency amount to whole units.
func FloorUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Floor()
}
