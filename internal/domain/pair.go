// Package domain defines core data structures used throughout the rebalancer.
package domain

import "fmt"

// Pair instrument quoted in the cash currency on an exchange.
type Pair struct {
	// From instrument symbol.
	From string
	// To cash currency symbol.
	To string
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
