package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOverviewAssetsNoAssetsNoOpenOrders(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.ExpectScan(0, "bal_*", 0).SetVal([]string{}, 0)
	mock.ExpectScan(0, "idx_status_new_*", 0).SetVal([]string{}, 0)
	mock.ExpectScan(0, "idx_status_partially_filled_*", 0).SetVal([]string{}, 0)

	rows, err := e.OverviewAssets(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestOverviewAssetsFlagsMismatch(t *testing.T) {
	e, mock := newTestEngine(t)

	mock.ExpectScan(0, "bal_*", 0).SetVal([]string{"bal_USDT"}, 0)
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "100", "used": "50"})

	mock.ExpectScan(0, "idx_status_new_*", 0).SetVal([]string{"idx_status_new_o6"}, 0)
	mock.ExpectHGetAll("ord_o6").SetVal(map[string]string{
		"oid":             "o6",
		"symbol":          "BTC/USDT",
		"side":            "buy",
		"type":            "limit",
		"amount":          "1",
		"limit_price":     "50",
		"status":          "new",
		"reserved_asset":  "USDT",
		"reserved_amount": "50",
		"notional":        "10",
		"fee":             "0",
		"filled":          "0",
		"commission_rate": "0.00075",
	})
	mock.ExpectScan(0, "idx_status_partially_filled_*", 0).SetVal([]string{}, 0)

	rows, err := e.OverviewAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "USDT", rows[0].Asset)
	require.True(t, rows[0].Mismatch)
	require.True(t, rows[0].ExpectedUsed.Equal(decimal.NewFromInt(40)))
	require.True(t, rows[0].Used.Equal(decimal.NewFromInt(50)))
}
