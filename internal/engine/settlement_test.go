package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

func TestCrossesBuyWhenPriceAtOrBelowLimit(t *testing.T) {
	require.True(t, crosses(xchange.Buy, decimal.NewFromInt(100), decimal.NewFromInt(100)))
	require.True(t, crosses(xchange.Buy, decimal.NewFromInt(99), decimal.NewFromInt(100)))
	require.False(t, crosses(xchange.Buy, decimal.NewFromInt(101), decimal.NewFromInt(100)))
}

func TestCrossesSellWhenPriceAtOrAboveLimit(t *testing.T) {
	require.True(t, crosses(xchange.Sell, decimal.NewFromInt(100), decimal.NewFromInt(100)))
	require.True(t, crosses(xchange.Sell, decimal.NewFromInt(101), decimal.NewFromInt(100)))
	require.False(t, crosses(xchange.Sell, decimal.NewFromInt(99), decimal.NewFromInt(100)))
}

func TestSettleOneLimitFillsCrossingBuyOrder(t *testing.T) {
	e, mock := newTestEngine(t)

	orderFields := map[string]string{
		"oid":             "o4",
		"symbol":          "BTC/USDT",
		"side":            "buy",
		"type":            "limit",
		"amount":          "1",
		"limit_price":     "50000",
		"status":          "new",
		"reserved_asset":  "USDT",
		"reserved_amount": "50037.5",
		"notional":        "0",
		"fee":             "0",
		"filled":          "0",
		"commission_rate": "0.00075",
	}

	mock.Regexp().ExpectSetNX(`lock_ord_o4`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("ord_o4").SetVal(orderFields)

	// applyFill at limit_price (50000): SettleOut(USDT, 50037.5), CreditFree(BTC, 1).
	// spend (notional+fee) exactly consumes the reservation, so no Release fires.
	mock.Regexp().ExpectSetNX(`lock_bal_USDT`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "0", "used": "50037.5"})
	mock.Regexp().ExpectHSet(`bal_USDT`, `.*`).SetVal(1)

	mock.Regexp().ExpectSetNX(`lock_bal_BTC`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("bal_BTC").SetVal(map[string]string{"free": "0", "used": "0"})
	mock.Regexp().ExpectHSet(`bal_BTC`, `.*`).SetVal(1)

	// MutateLocked: re-read, write, reindex.
	mock.ExpectHGetAll("ord_o4").SetVal(orderFields)
	mock.Regexp().ExpectHSet(`ord_o4`, `.*`).SetVal(1)
	mock.ExpectDel("idx_status_new_o4").SetVal(1)
	mock.Regexp().ExpectHSet(`idx_status_filled_o4`, `.*`).SetVal(1)

	// Tick price (49000) only drives the crosses() check; the fill itself
	// happens at the order's limit_price (50000).
	err := e.settleOneLimit(context.Background(), "o4", decimal.NewFromInt(49000))
	require.NoError(t, err)
}

func TestSettleOneLimitSkipsNonCrossingOrder(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.Regexp().ExpectSetNX(`lock_ord_o5`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("ord_o5").SetVal(map[string]string{
		"oid":             "o5",
		"symbol":          "BTC/USDT",
		"side":            "buy",
		"type":            "limit",
		"amount":          "1",
		"limit_price":     "50000",
		"status":          "new",
		"reserved_asset":  "USDT",
		"reserved_amount": "50037.5",
	})

	err := e.settleOneLimit(context.Background(), "o5", decimal.NewFromInt(51000))
	require.NoError(t, err)
}
