package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

// Cancel implements §4.8's cancel operation: requires status ∈ OPEN,
// releases the remaining reservation, transitions to canceled (or
// partially_canceled if the order had already received a partial fill).
func (e *Engine) Cancel(ctx context.Context, oid string) (xchange.Order, error) {
	var result xchange.Order
	var releaseAsset string
	releaseAmount := decimal.Zero

	err := e.orderbook.WithOrderLock(ctx, oid, func(ctx context.Context) error {
		current, err := e.orderbook.Get(ctx, oid)
		if err != nil {
			return err
		}
		if !current.Status.Open() {
			return fmt.Errorf("order %s: status %s is not open: %w", oid, current.Status, xerr.IllegalTransition)
		}

		spent := current.Notional.Add(current.Fee)
		remainder := current.ReservedAmount.Sub(spent)
		newStatus := xchange.StatusCanceled
		if current.Filled.IsPositive() {
			newStatus = xchange.StatusPartiallyCanceled
		}

		updated, err := e.orderbook.MutateLocked(ctx, oid, func(o *xchange.Order) error {
			o.Status = newStatus
			return nil
		})
		if err != nil {
			return err
		}

		result = updated
		releaseAsset = current.ReservedAsset
		if remainder.IsPositive() {
			releaseAmount = remainder
		}
		return nil
	})
	if err != nil {
		return xchange.Order{}, err
	}

	if releaseAmount.IsPositive() {
		if err := e.portfolio.Release(ctx, releaseAsset, releaseAmount); err != nil {
			return xchange.Order{}, err
		}
	}
	return result, nil
}

// Prune implements §4.8: expires stale OPEN orders past EXPIRE_AFTER and
// deletes terminal orders past STALE_AFTER. Idempotent and safe to re-run;
// per-item failures are logged and do not abort the sweep.
func (e *Engine) Prune(ctx context.Context) error {
	now := time.Now()

	open, err := e.orderbook.ScanOpen(ctx)
	if err != nil {
		return err
	}
	expireBefore := now.Add(-e.scheduler.ExpireAfter())
	for _, o := range open {
		if o.TsCreate.After(expireBefore) {
			continue
		}
		if err := e.expireOne(ctx, o.OID); err != nil {
			e.logger.Warn("prune: expire failed", "oid", o.OID, "err", err)
		}
	}

	staleBefore := now.Add(-e.scheduler.StaleAfter())
	terminal, err := e.orderbook.ScanTerminalOlderThan(ctx, staleBefore)
	if err != nil {
		return err
	}
	for _, o := range terminal {
		if err := e.orderbook.Delete(ctx, o.OID); err != nil {
			e.logger.Warn("prune: delete failed", "oid", o.OID, "err", err)
		}
	}
	return nil
}

func (e *Engine) expireOne(ctx context.Context, oid string) error {
	var releaseAsset string
	releaseAmount := decimal.Zero

	err := e.orderbook.WithOrderLock(ctx, oid, func(ctx context.Context) error {
		current, err := e.orderbook.Get(ctx, oid)
		if err != nil {
			if xerr.Is(err, xerr.NotFound) {
				return nil
			}
			return err
		}
		if !current.Status.Open() {
			return nil
		}

		spent := current.Notional.Add(current.Fee)
		remainder := current.ReservedAmount.Sub(spent)

		_, err = e.orderbook.MutateLocked(ctx, oid, func(o *xchange.Order) error {
			o.Status = xchange.StatusExpired
			return nil
		})
		if err != nil {
			return err
		}

		releaseAsset = current.ReservedAsset
		if remainder.IsPositive() {
			releaseAmount = remainder
		}
		return nil
	})
	if err != nil {
		return err
	}
	if releaseAmount.IsPositive() {
		return e.portfolio.Release(ctx, releaseAsset, releaseAmount)
	}
	return nil
}
