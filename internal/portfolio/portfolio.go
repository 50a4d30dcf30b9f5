// Package portfolio is the balance ledger: per-asset free/used amounts
// with reserve/release/settle primitives and the conservation invariant
// (§4.3). The Portfolio exclusively owns balance rows. The Engine makes
// every order-driven change; the HTTP adapter's admin routes call Set and
// Fund directly, and its read routes call Get and Snapshot.
package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/store"
	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

const balanceKeyPrefix = "bal_"

func balanceKey(asset string) string {
	return balanceKeyPrefix + asset
}

// Portfolio is a thin, stateless-by-design facade over balance hashes; all
// state lives in the store (§5 "the Engine keeps no authoritative in-memory
// state").
type Portfolio struct {
	store *store.Store
}

// New builds a Portfolio over store.
func New(s *store.Store) *Portfolio {
	return &Portfolio{store: s}
}

// Get returns asset's balance row. A missing row reads as zeros.
func (p *Portfolio) Get(ctx context.Context, asset string) (xchange.Balance, error) {
	fields, err := p.store.HGetAll(ctx, balanceKey(asset))
	if err != nil {
		return xchange.Balance{}, fmt.Errorf("get balance %s: %w", asset, err)
	}
	return rowFrom(asset, fields), nil
}

// Set overrides asset's row directly (admin operation). Rejects negative
// values; does not go through the reserve/release arithmetic.
func (p *Portfolio) Set(ctx context.Context, asset string, free, used decimal.Decimal) error {
	if free.IsNegative() || used.IsNegative() {
		return fmt.Errorf("set balance %s: %w", asset, xerr.InvalidArgument)
	}
	var outerErr error
	err := p.store.WithLock(ctx, balanceKey(asset), func(ctx context.Context) error {
		outerErr = p.store.HSet(ctx, balanceKey(asset), map[string]string{
			"free": free.String(),
			"used": used.String(),
		})
		return outerErr
	})
	if err != nil {
		return fmt.Errorf("set balance %s: %w", asset, err)
	}
	return nil
}

// Fund adds amount to asset's free balance. amount must be positive.
func (p *Portfolio) Fund(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("fund %s: %w", asset, xerr.InvalidArgument)
	}
	return p.mutate(ctx, asset, func(row xchange.Balance) (xchange.Balance, error) {
		row.Free = row.Free.Add(amount)
		return row, nil
	})
}

// Reserve moves amount from free to used. Fails with InsufficientFunds if
// free < amount.
func (p *Portfolio) Reserve(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("reserve %s: %w", asset, xerr.InvalidArgument)
	}
	return p.mutate(ctx, asset, func(row xchange.Balance) (xchange.Balance, error) {
		if row.Free.LessThan(amount) {
			return row, fmt.Errorf("reserve %s %s: have %s free: %w", amount, asset, row.Free, xerr.InsufficientFunds)
		}
		row.Free = row.Free.Sub(amount)
		row.Used = row.Used.Add(amount)
		return row, nil
	})
}

// Release moves amount from used back to free.
func (p *Portfolio) Release(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("release %s: %w", asset, xerr.InvalidArgument)
	}
	return p.mutate(ctx, asset, func(row xchange.Balance) (xchange.Balance, error) {
		if row.Used.LessThan(amount) {
			return row, fmt.Errorf("release %s %s: only %s used: %w", amount, asset, row.Used, xerr.Fatal)
		}
		row.Used = row.Used.Sub(amount)
		row.Free = row.Free.Add(amount)
		return row, nil
	})
}

// SettleOut removes amount from used — funds leaving the account on a fill
// (quote spent on a buy, base delivered on a sell).
func (p *Portfolio) SettleOut(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("settle_out %s: %w", asset, xerr.InvalidArgument)
	}
	return p.mutate(ctx, asset, func(row xchange.Balance) (xchange.Balance, error) {
		if row.Used.LessThan(amount) {
			return row, fmt.Errorf("settle_out %s %s: only %s used: %w", amount, asset, row.Used, xerr.Fatal)
		}
		row.Used = row.Used.Sub(amount)
		return row, nil
	})
}

// CreditFree adds amount to free — funds arriving on a fill (base received
// on a buy, quote received on a sell net of fee).
func (p *Portfolio) CreditFree(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit_free %s: %w", asset, xerr.InvalidArgument)
	}
	return p.mutate(ctx, asset, func(row xchange.Balance) (xchange.Balance, error) {
		row.Free = row.Free.Add(amount)
		return row, nil
	})
}

// List enumerates every asset that has a balance row.
func (p *Portfolio) List(ctx context.Context) ([]string, error) {
	keys, err := p.store.KeysWithPrefix(ctx, balanceKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	assets := make([]string, 0, len(keys))
	for _, k := range keys {
		assets = append(assets, strings.TrimPrefix(k, balanceKeyPrefix))
	}
	return assets, nil
}

// Snapshot returns every asset's row in one shot.
func (p *Portfolio) Snapshot(ctx context.Context) (map[string]xchange.Balance, error) {
	assets, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]xchange.Balance, len(assets))
	for _, asset := range assets {
		row, err := p.Get(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", asset, err)
		}
		out[asset] = row
	}
	return out, nil
}

// mutate reads-modifies-writes a balance row under the asset's advisory
// lock, the atomic unit every operation above is built from (§5 "per-asset
// lock: held across the atomic sequence check free → reserve/release/settle").
func (p *Portfolio) mutate(ctx context.Context, asset string, fn func(xchange.Balance) (xchange.Balance, error)) error {
	return p.store.WithLock(ctx, balanceKey(asset), func(ctx context.Context) error {
		fields, err := p.store.HGetAll(ctx, balanceKey(asset))
		if err != nil {
			return err
		}
		row := rowFrom(asset, fields)

		newRow, err := fn(row)
		if err != nil {
			return err
		}

		return p.store.HSet(ctx, balanceKey(asset), map[string]string{
			"free": newRow.Free.String(),
			"used": newRow.Used.String(),
		})
	})
}

func rowFrom(asset string, fields map[string]string) xchange.Balance {
	free, _ := decimal.NewFromString(fields["free"])
	used, _ := decimal.NewFromString(fields["used"])
	return xchange.Balance{Asset: asset, Free: free, Used: used}
}
