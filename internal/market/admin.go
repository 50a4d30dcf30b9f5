package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/store"
)

// Admin is the one write path onto ticker hashes: the operator-only
// "force price" endpoint (§6 PATCH /admin/tickers/{sym}/price). It is kept
// separate from View so every other caller of this package is provably
// read-only.
type Admin struct {
	store *store.Store
}

// NewAdmin builds an Admin over store.
func NewAdmin(s *store.Store) *Admin {
	return &Admin{store: s}
}

// ForcePrice overwrites symbol's last price and timestamp, leaving
// bid/ask/volumes untouched (when absent, View defaults bid/ask to price
// and volumes to zero).
func (a *Admin) ForcePrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	if err := a.store.HSet(ctx, tickerKey(symbol), map[string]string{
		"symbol":    symbol,
		"price":     price.String(),
		"timestamp": strconv.FormatFloat(now, 'f', -1, 64),
	}); err != nil {
		return fmt.Errorf("force price %s: %w", symbol, err)
	}
	return nil
}
