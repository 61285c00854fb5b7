package trader

import (
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCostBasis(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name    string
		fills   []fill
		wantQty string
		wantAvg string
	}{
		{
			name:    "no history",
			wantQty: "0",
			wantAvg: "0",
		},
		{
			name: "weighted buys out of order",
			fills: []fill{
				{Qty: d("10"), Price: d("20"), IsBuy: true, Time: 2},
				{Qty: d("10"), Price: d("10"), IsBuy: true, Time: 1},
			},
			wantQty: "20",
			wantAvg: "15",
		},
		{
			name: "partial sell keeps average",
			fills: []fill{
				{Qty: d("4"), Price: d("10"), IsBuy: true, Time: 1},
				{Qty: d("1"), Price: d("50"), Time: 2},
			},
			wantQty: "3",
			wantAvg: "10",
		},
		{
			name: "full exit resets cycle",
			fills: []fill{
				{Qty: d("4"), Price: d("10"), IsBuy: true, Time: 1},
				{Qty: d("4"), Price: d("12"), Time: 2},
				{Qty: d("2"), Price: d("30"), IsBuy: true, Time: 3},
			},
			wantQty: "2",
			wantAvg: "30",
		},
		{
			name: "sell before window ignored",
			fills: []fill{
				{Qty: d("5"), Price: d("9"), Time: 1},
				{Qty: d("1"), Price: d("8"), IsBuy: true, Time: 2},
				{Qty: d("3"), Price: d("9"), Time: 3},
			},
			wantQty: "0",
			wantAvg: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := costBasis("BTC", tt.fills)
			require.True(t, pos.Quantity.Equal(d(tt.wantQty)), "qty %s", pos.Quantity.String())
			require.True(t, pos.AvgPrice.Equal(d(tt.wantAvg)), "avg %s", pos.AvgPrice.String())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(errors.New("connection reset")))
	require.False(t, IsRetryable(&common.APIError{Code: -1121, Message: "Invalid symbol."}))
	require.False(t, IsRetryable(errors.Wrap(&common.APIError{Code: -2010}, "order")))
}

func TestNewBinanceTrader_Validation(t *testing.T) {
	_, err := NewBinanceTrader(zap.NewNop(), nil, "USDT", nil)
	require.Error(t, err)

	_, err = NewBinanceTrader(zap.NewNop(), binance.NewClient("", ""), "", nil)
	require.Error(t, err)

	tr, err := NewBinanceTrader(nil, binance.NewClient("", ""), "USDT", nil)
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", tr.pair("BTC").Symbol())
}
