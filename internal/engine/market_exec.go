package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

// executeMarket runs §4.6 for one market order, dispatched as a goroutine
// from Place. It logs and returns on any error rather than propagating —
// the client observes the outcome by polling the order's status, not
// through a return value (§4.5 step 5: "return immediately").
func (e *Engine) executeMarket(oid string) {
	ctx := context.Background()
	err := e.orderbook.WithOrderLock(ctx, oid, func(ctx context.Context) error {
		return e.executeMarketLocked(ctx, oid)
	})
	if err != nil {
		e.logger.Error("market execution failed", "oid", oid, "err", err)
	}
}

func (e *Engine) executeMarketLocked(ctx context.Context, oid string) error {
	// Step 1: mandatory artificial latency.
	time.Sleep(e.sampleLatency(e.cfg.MinTimeAnswerOrderMarket, e.cfg.MaxTimeAnswerOrderMarket))

	order, err := e.orderbook.Get(ctx, oid)
	if err != nil {
		return err
	}
	if order.Status != xchange.StatusNew {
		// Nothing to do — a cancel or prune that took oid's lock before this
		// goroutine did has already finalized the order.
		return nil
	}

	price, err := e.market.LastPrice(ctx, order.Symbol)
	stale := false
	if err == nil && e.cfg.StaleAfterSeconds > 0 {
		stale, err = e.market.IsStale(ctx, order.Symbol, time.Duration(e.cfg.StaleAfterSeconds)*time.Second)
	}
	if err != nil || stale {
		return e.rejectAndRelease(ctx, oid, order, "ticker unavailable or stale")
	}

	// Step 3: sample the fill ratio.
	r := e.sampleFillRatio(e.cfg.SigmaFillMarketOrder)
	filled := order.Amount.Mul(r)

	// Steps 4–5: compute and apply the balance moves.
	notional, fee, err := e.applyFill(ctx, order, price, filled)
	if err != nil {
		return err
	}

	// Step 6: market orders never remain open.
	status := xchange.StatusPartiallyCanceled
	if r.Equal(decimal.NewFromInt(1)) {
		status = xchange.StatusFilled
	}

	_, err = e.orderbook.MutateLocked(ctx, oid, func(o *xchange.Order) error {
		o.Filled = filled
		o.Notional = notional
		o.Fee = fee
		o.AvgPrice = price
		o.Status = status
		return nil
	})
	return err
}

func (e *Engine) rejectAndRelease(ctx context.Context, oid string, order xchange.Order, reason string) error {
	_, err := e.orderbook.MutateLocked(ctx, oid, func(o *xchange.Order) error {
		o.Status = xchange.StatusRejected
		o.CancelReason = reason
		return nil
	})
	if err != nil {
		return err
	}
	return e.portfolio.Release(ctx, order.ReservedAsset, order.ReservedAmount)
}

// applyFill moves balances for a fill of size filled at price, against
// order's reservation (§4.6 step 5 / §4.7 step 3 — both settlement paths
// share this). order.Filled is assumed 0 coming in: the reachable state
// machine only ever fills an order in one shot (§9 Open Question (a)).
func (e *Engine) applyFill(ctx context.Context, order xchange.Order, price, filled decimal.Decimal) (notional, fee decimal.Decimal, err error) {
	notional = filled.Mul(price)
	fee = notional.Mul(order.CommissionRate)

	base, quote, err := splitSymbol(order.Symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if order.Side == xchange.Buy {
		spend := notional.Add(fee)
		if err = e.portfolio.SettleOut(ctx, quote, spend); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if err = e.portfolio.CreditFree(ctx, base, filled); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if unused := order.ReservedAmount.Sub(spend); unused.IsPositive() {
			if err = e.portfolio.Release(ctx, quote, unused); err != nil {
				return decimal.Zero, decimal.Zero, err
			}
		}
		return notional, fee, nil
	}

	// Sell: fee is deducted from quote proceeds, base reservation is released.
	if err = e.portfolio.SettleOut(ctx, base, filled); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	proceeds := notional.Sub(fee)
	if proceeds.IsPositive() {
		if err = e.portfolio.CreditFree(ctx, quote, proceeds); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}
	if unused := order.Amount.Sub(filled); unused.IsPositive() {
		if err = e.portfolio.Release(ctx, base, unused); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}
	return notional, fee, nil
}
