package engine

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/didac-crst/mockexchange-api/internal/config"
	"github.com/didac-crst/mockexchange-api/internal/market"
	"github.com/didac-crst/mockexchange-api/internal/orderbook"
	"github.com/didac-crst/mockexchange-api/internal/portfolio"
	"github.com/didac-crst/mockexchange-api/internal/store"
	"github.com/didac-crst/mockexchange-api/internal/xerr"
)

func newTestEngine(t *testing.T) (*Engine, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	st := store.WrapClient(rdb)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mkt := market.New(st)
	pf := portfolio.New(st)
	ob := orderbook.New(st)
	eng := New(config.Default().Exchange, config.Default().Scheduler, mkt, pf, ob, logger, rand.New(rand.NewSource(1)))
	return eng, mock
}

func TestCanExecuteUnknownSymbol(t *testing.T) {
	e, mock := newTestEngine(t)
	mock.ExpectHGetAll("sym_BTC/USDT").SetVal(map[string]string{})

	ok, _, err := e.CanExecute(context.Background(), "BTC/USDT", "buy", "limit", decimal.NewFromInt(1), decimal.NewFromInt(50000))
	require.False(t, ok)
	require.ErrorIs(t, err, xerr.UnknownSymbol)
}

func TestCanExecuteInsufficientFunds(t *testing.T) {
	e, mock := newTestEngine(t)
	mock.ExpectHGetAll("sym_BTC/USDT").SetVal(map[string]string{"price": "50000", "timestamp": "1700000000"})
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "10", "used": "0"})

	ok, reason, err := e.CanExecute(context.Background(), "BTC/USDT", "buy", "limit", decimal.NewFromInt(1), decimal.NewFromInt(50000))
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, reason, "insufficient")
}

func TestCanExecuteSufficientFunds(t *testing.T) {
	e, mock := newTestEngine(t)
	mock.ExpectHGetAll("sym_BTC/USDT").SetVal(map[string]string{"price": "50000", "timestamp": "1700000000"})
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "1000000", "used": "0"})

	ok, _, err := e.CanExecute(context.Background(), "BTC/USDT", "buy", "limit", decimal.NewFromInt(1), decimal.NewFromInt(50000))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanExecuteRejectsNonPositiveAmount(t *testing.T) {
	e, _ := newTestEngine(t)
	ok, _, err := e.CanExecute(context.Background(), "BTC/USDT", "buy", "limit", decimal.Zero, decimal.NewFromInt(50000))
	require.False(t, ok)
	require.ErrorIs(t, err, xerr.InvalidArgument)
}

func TestPlaceRejectsOnInsufficientFunds(t *testing.T) {
	e, mock := newTestEngine(t)
	// validateIntake's ticker read, then reservation's ticker read for a
	// market order (no caching between the two steps).
	mock.ExpectHGetAll("sym_BTC/USDT").SetVal(map[string]string{"price": "50000", "timestamp": "1700000000"})
	mock.ExpectHGetAll("sym_BTC/USDT").SetVal(map[string]string{"price": "50000", "timestamp": "1700000000"})

	mock.Regexp().ExpectSetNX(`lock_bal_USDT`, `.*`, `.*`).SetVal(true)
	mock.ExpectHGetAll("bal_USDT").SetVal(map[string]string{"free": "0", "used": "0"})

	mock.ExpectIncr("oid_counter").SetVal(1)
	mock.Regexp().ExpectHSet(`ord_o1`, `.*`).SetVal(1)
	mock.Regexp().ExpectHSet(`idx_status_rejected_o1`, `.*`).SetVal(1)
	mock.Regexp().ExpectHSet(`idx_sym_BTC/USDT_o1`, `.*`).SetVal(1)

	order, err := e.Place(context.Background(), "BTC/USDT", "buy", "market", decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, "rejected", string(order.Status))
	require.True(t, order.ReservedAmount.IsZero())
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := splitSymbol("BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, "BTC", base)
	require.Equal(t, "USDT", quote)

	_, _, err = splitSymbol("BTCUSDT")
	require.ErrorIs(t, err, xerr.InvalidArgument)
}
