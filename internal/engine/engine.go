// Package engine is the matching and portfolio engine: order intake,
// pre-trade checks, market-order execution with simulated latency and
// partial fills, limit settlement, cancellation, pruning, and the
// reconciliation report (§4.5–§4.9). It makes every order-driven change to
// Orderbook and Portfolio state; the HTTP adapter's admin routes set and
// fund balance rows without going through it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/config"
	"github.com/didac-crst/mockexchange-api/internal/market"
	"github.com/didac-crst/mockexchange-api/internal/orderbook"
	"github.com/didac-crst/mockexchange-api/internal/portfolio"
	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

// Engine composes the three leaf components and the exchange-wide
// configuration knobs. It keeps no authoritative in-memory state — every
// operation reads and writes through to the store (§5).
type Engine struct {
	cfg       config.ExchangeConfig
	scheduler config.SchedulerConfig
	market    *market.View
	portfolio *portfolio.Portfolio
	orderbook *orderbook.Orderbook
	logger    *slog.Logger

	// rng backs both the market-order latency sampler and the fill-ratio
	// sampler. Tests inject a seeded *rand.Rand for determinism (spec §9
	// "Randomness"); production uses a source seeded from the clock.
	rng *rand.Rand
}

// New builds an Engine. rng may be nil, in which case a time-seeded source
// is created. scheduler supplies the stale/expire horizons Prune runs
// against (§4.8); the tick/prune intervals themselves live with the
// Scheduler, not the Engine.
func New(cfg config.ExchangeConfig, scheduler config.SchedulerConfig, m *market.View, p *portfolio.Portfolio, ob *orderbook.Orderbook, logger *slog.Logger, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		cfg:       cfg,
		scheduler: scheduler,
		market:    m,
		portfolio: p,
		orderbook: ob,
		logger:    logger.With("component", "engine"),
		rng:       rng,
	}
}

// splitSymbol parses "BASE/QUOTE" into its two assets.
func splitSymbol(symbol string) (base, quote string, err error) {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return symbol[:i], symbol[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("symbol %q missing base/quote separator: %w", symbol, xerr.InvalidArgument)
}

// reservation computes the asset and amount to reserve for an incoming
// order, per §4.5 step 2.
func (e *Engine) reservation(ctx context.Context, symbol string, side xchange.Side, typ xchange.Type, amount, limitPrice decimal.Decimal) (asset string, reserveAmount decimal.Decimal, err error) {
	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return "", decimal.Zero, err
	}

	if side == xchange.Sell {
		return base, amount, nil
	}

	effectivePrice := limitPrice
	if typ == xchange.Market {
		effectivePrice, err = e.market.LastPrice(ctx, symbol)
		if err != nil {
			return "", decimal.Zero, err
		}
	}
	one := decimal.NewFromInt(1)
	reserveQuote := amount.Mul(effectivePrice).Mul(one.Add(e.cfg.FeeRate()))
	return quote, reserveQuote, nil
}

// validateIntake checks step 1 of §4.5: amount positivity, limit price
// presence, and ticker existence.
func (e *Engine) validateIntake(ctx context.Context, symbol string, side xchange.Side, typ xchange.Type, amount, limitPrice decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be > 0: %w", xerr.InvalidArgument)
	}
	if side != xchange.Buy && side != xchange.Sell {
		return fmt.Errorf("unknown side %q: %w", side, xerr.InvalidArgument)
	}
	if typ != xchange.Market && typ != xchange.Limit {
		return fmt.Errorf("unknown type %q: %w", typ, xerr.InvalidArgument)
	}
	if typ == xchange.Limit && !limitPrice.IsPositive() {
		return fmt.Errorf("limit order requires limit_price > 0: %w", xerr.InvalidArgument)
	}
	if _, err := e.market.LastPrice(ctx, symbol); err != nil {
		return err
	}
	return nil
}

// CanExecute performs §4.5 steps 1–2 without reserving or persisting.
func (e *Engine) CanExecute(ctx context.Context, symbol string, side xchange.Side, typ xchange.Type, amount, limitPrice decimal.Decimal) (ok bool, reason string, err error) {
	if err := e.validateIntake(ctx, symbol, side, typ, amount, limitPrice); err != nil {
		return false, err.Error(), err
	}
	asset, need, err := e.reservation(ctx, symbol, side, typ, amount, limitPrice)
	if err != nil {
		return false, err.Error(), err
	}
	row, err := e.portfolio.Get(ctx, asset)
	if err != nil {
		return false, err.Error(), err
	}
	if row.Free.LessThan(need) {
		return false, fmt.Sprintf("insufficient %s: have %s free, need %s", asset, row.Free, need), nil
	}
	return true, "", nil
}

// Place implements §4.5: validate, reserve, persist, and for market orders
// dispatch asynchronous execution. The returned order reflects the record
// immediately after persistence — for market orders its status is still
// "new" (or "rejected" if reservation failed); the client polls for the
// terminal outcome.
func (e *Engine) Place(ctx context.Context, symbol string, side xchange.Side, typ xchange.Type, amount, limitPrice decimal.Decimal) (xchange.Order, error) {
	if err := e.validateIntake(ctx, symbol, side, typ, amount, limitPrice); err != nil {
		return xchange.Order{}, err
	}

	asset, reserveAmount, err := e.reservation(ctx, symbol, side, typ, amount, limitPrice)
	if err != nil {
		return xchange.Order{}, err
	}

	now := time.Now()
	draft := xchange.Order{
		Symbol:         symbol,
		Side:           side,
		Type:           typ,
		Amount:         amount,
		LimitPrice:     limitPrice,
		CommissionRate: e.cfg.FeeRate(),
		CashAsset:      e.cfg.CashAsset,
		ReservedAsset:  asset,
		ReservedAmount: reserveAmount,
		Status:         xchange.StatusNew,
		TsCreate:       now,
		TsUpdate:       now,
	}

	if err := e.portfolio.Reserve(ctx, asset, reserveAmount); err != nil {
		if !xerr.Is(err, xerr.InsufficientFunds) {
			return xchange.Order{}, err
		}
		// §7 propagation policy: capture as a rejected order, not an error.
		draft.Status = xchange.StatusRejected
		draft.ReservedAmount = decimal.Zero
		draft.CancelReason = "insufficient funds"
		return e.orderbook.Create(ctx, draft)
	}

	order, err := e.orderbook.Create(ctx, draft)
	if err != nil {
		// Roll back the reservation; the order never made it to the book.
		_ = e.portfolio.Release(ctx, asset, reserveAmount)
		return xchange.Order{}, err
	}

	if typ == xchange.Market {
		go e.executeMarket(order.OID)
	}
	return order, nil
}
