package engine

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

// RunTick is the tick loop body (§4.7): for every OPEN limit order, settle
// it in full if the last price crosses its limit. Orders within the same
// symbol are processed FIFO by ts_create, ties broken by oid; the lock is
// acquired one order at a time, never two simultaneously (§5).
func (e *Engine) RunTick(ctx context.Context) error {
	open, err := e.orderbook.ScanOpen(ctx)
	if err != nil {
		return err
	}

	bySymbol := make(map[string][]xchange.Order)
	for _, o := range open {
		if o.Type != xchange.Limit {
			continue
		}
		bySymbol[o.Symbol] = append(bySymbol[o.Symbol], o)
	}

	for symbol, orders := range bySymbol {
		sort.Slice(orders, func(i, j int) bool {
			if !orders[i].TsCreate.Equal(orders[j].TsCreate) {
				return orders[i].TsCreate.Before(orders[j].TsCreate)
			}
			return orders[i].OID < orders[j].OID
		})

		price, err := e.market.LastPrice(ctx, symbol)
		if err != nil {
			e.logger.Warn("tick: skipping symbol, no ticker", "symbol", symbol, "err", err)
			continue
		}
		if e.cfg.StaleAfterSeconds > 0 {
			stale, err := e.market.IsStale(ctx, symbol, time.Duration(e.cfg.StaleAfterSeconds)*time.Second)
			if err != nil || stale {
				e.logger.Warn("tick: deferring symbol, ticker stale", "symbol", symbol, "err", err)
				continue
			}
		}

		for _, o := range orders {
			if err := e.settleOneLimit(ctx, o.OID, price); err != nil {
				e.logger.Warn("tick: settle failed", "oid", o.OID, "err", err)
			}
		}
	}
	return nil
}

func crosses(side xchange.Side, lastPrice, limitPrice decimal.Decimal) bool {
	if side == xchange.Buy {
		return lastPrice.LessThanOrEqual(limitPrice)
	}
	return lastPrice.GreaterThanOrEqual(limitPrice)
}

func (e *Engine) settleOneLimit(ctx context.Context, oid string, price decimal.Decimal) error {
	return e.orderbook.WithOrderLock(ctx, oid, func(ctx context.Context) error {
		order, err := e.orderbook.Get(ctx, oid)
		if err != nil {
			if xerr.Is(err, xerr.NotFound) {
				return nil // pruned between enumeration and settlement
			}
			return err
		}
		if !order.Status.Open() || order.Type != xchange.Limit {
			return nil
		}
		if !crosses(order.Side, price, order.LimitPrice) {
			return nil
		}

		rem := order.Remaining()
		notional, fee, err := e.applyFill(ctx, order, order.LimitPrice, rem)
		if err != nil {
			return err
		}

		_, err = e.orderbook.MutateLocked(ctx, oid, func(o *xchange.Order) error {
			o.Filled = o.Filled.Add(rem)
			o.Notional = o.Notional.Add(notional)
			o.Fee = o.Fee.Add(fee)
			o.AvgPrice = order.LimitPrice
			o.Status = xchange.StatusFilled
			return nil
		})
		return err
	})
}
