// Package market is a read-only facade over the ticker hashes written by
// an external price feeder. It resolves last price, full quote, and
// staleness for a symbol; it applies no rounding and holds no cache of its
// own — every call is a fresh store read (§5: "any cache is advisory").
package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/store"
	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

const tickerKeyPrefix = "sym_"

func tickerKey(symbol string) string {
	return tickerKeyPrefix + symbol
}

// View reads ticker hashes fed by an external producer. It never writes
// them; the one exception is the admin "force price" endpoint, which goes
// through Admin (see admin.go) rather than this type.
type View struct {
	store *store.Store
}

// New builds a Market View over store.
func New(s *store.Store) *View {
	return &View{store: s}
}

// Quote returns the full ticker for symbol. UnknownSymbol if no hash
// exists or it carries no price.
func (v *View) Quote(ctx context.Context, symbol string) (xchange.Ticker, error) {
	fields, err := v.store.HGetAll(ctx, tickerKey(symbol))
	if err != nil {
		return xchange.Ticker{}, fmt.Errorf("read ticker %s: %w", symbol, err)
	}
	priceStr, ok := fields["price"]
	if !ok || priceStr == "" {
		return xchange.Ticker{}, fmt.Errorf("ticker %s: %w", symbol, xerr.UnknownSymbol)
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return xchange.Ticker{}, fmt.Errorf("ticker %s: bad price %q: %w", symbol, priceStr, xerr.Fatal)
	}
	ts, _ := strconv.ParseFloat(fields["timestamp"], 64)

	t := xchange.Ticker{
		Symbol:    symbol,
		Price:     price,
		Timestamp: ts,
		Bid:       parseDecimalOr(fields["bid"], price),
		Ask:       parseDecimalOr(fields["ask"], price),
		BidVolume: parseDecimalOr(fields["bidVolume"], decimal.Zero),
		AskVolume: parseDecimalOr(fields["askVolume"], decimal.Zero),
	}
	return t, nil
}

// ListSymbols enumerates every symbol with a ticker hash (§6 GET /tickers).
func (v *View) ListSymbols(ctx context.Context) ([]string, error) {
	keys, err := v.store.KeysWithPrefix(ctx, tickerKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	symbols := make([]string, 0, len(keys))
	for _, k := range keys {
		symbols = append(symbols, strings.TrimPrefix(k, tickerKeyPrefix))
	}
	return symbols, nil
}

// LastPrice returns symbol's last trade price. UnknownSymbol if absent.
func (v *View) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t, err := v.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Price, nil
}

// IsStale reports whether symbol's ticker is older than maxAge. A missing
// ticker counts as stale (UnknownSymbol is returned instead of a bool, so
// callers that only care about staleness should check the error kind).
func (v *View) IsStale(ctx context.Context, symbol string, maxAge time.Duration) (bool, error) {
	t, err := v.Quote(ctx, symbol)
	if err != nil {
		return true, err
	}
	return t.Age(time.Now()) > maxAge, nil
}

func parseDecimalOr(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}
