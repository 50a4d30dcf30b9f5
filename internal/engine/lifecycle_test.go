package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/didac-crst/mockexchange-api/internal/xerr"
)

func TestCancelRejectsAlreadyTerminalOrder(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.Regexp().ExpectSetNX(`lock_ord_o1`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("ord_o1").SetVal(map[string]string{
		"oid":             "o1",
		"symbol":          "BTC/USDT",
		"side":            "buy",
		"type":            "limit",
		"amount":          "1",
		"limit_price":     "50000",
		"status":          "filled",
		"reserved_asset":  "USDT",
		"reserved_amount": "50037.5",
		"notional":        "50000",
		"fee":             "37.5",
		"filled":          "1",
		"commission_rate": "0.00075",
	})

	_, err := e.Cancel(context.Background(), "o1")
	require.ErrorIs(t, err, xerr.IllegalTransition)
}

func TestCancelReleasesUnusedReservation(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.Regexp().ExpectSetNX(`lock_ord_o2`, `.*`, `.*`).SetVal(true)
	orderFields := map[string]string{
		"oid":             "o2",
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
	// Get inside WithOrderLock, then Get again inside MutateLocked.
	mock.ExpectHGetAll("ord_o2").SetVal(orderFields)
	mock.ExpectHGetAll("ord_o2").SetVal(orderFields)
	mock.Regexp().ExpectHSet(`ord_o2`, `.*`).SetVal(1)
	mock.ExpectDel("idx_status_new_o2").SetVal(1)
	mock.Regexp().ExpectHSet(`idx_status_canceled_o2`, `.*`).SetVal(1)

	mock.Regexp().ExpectSetNX(`lock_bal_USDT`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "0", "used": "50037.5"})
	mock.Regexp().ExpectHSet(`bal_USDT`, `.*`).SetVal(1)

	order, err := e.Cancel(context.Background(), "o2")
	require.NoError(t, err)
	require.Equal(t, "canceled", string(order.Status))
}

func TestCancelPartialFillBecomesPartiallyCanceled(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.Regexp().ExpectSetNX(`lock_ord_o3`, `.*`, `.*`).SetVal(true)
	orderFields := map[string]string{
		"oid":             "o3",
		"symbol":          "BTC/USDT",
		"side":            "buy",
		"type":            "limit",
		"amount":          "2",
		"limit_price":     "50000",
		"status":          "partially_filled",
		"reserved_asset":  "USDT",
		"reserved_amount": "100075",
		"notional":        "50000",
		"fee":             "37.5",
		"filled":          "1",
		"commission_rate": "0.00075",
	}
	mock.ExpectHGetAll("ord_o3").SetVal(orderFields)
	mock.ExpectHGetAll("ord_o3").SetVal(orderFields)
	mock.Regexp().ExpectHSet(`ord_o3`, `.*`).SetVal(1)
	mock.ExpectDel("idx_status_partially_filled_o3").SetVal(1)
	mock.Regexp().ExpectHSet(`idx_status_partially_canceled_o3`, `.*`).SetVal(1)

	mock.Regexp().ExpectSetNX(`lock_bal_USDT`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "0", "used": "100075"})
	mock.Regexp().ExpectHSet(`bal_USDT`, `.*`).SetVal(1)

	order, err := e.Cancel(context.Background(), "o3")
	require.NoError(t, err)
	require.Equal(t, "partially_canceled", string(order.Status))
	require.True(t, decimal.NewFromFloat(50037.5).Equal(order.ReservedAmount.Sub(order.Notional).Sub(order.Fee)))
}
