// Package clients builds exchange API clients.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates an authenticated spot client.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
