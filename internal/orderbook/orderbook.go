// Package orderbook persists order records, keeps status/symbol indexes,
// and enforces the state machine's transition graph (§3, §4.4). The
// Orderbook exclusively owns the order record; nothing outside the Engine
// may call Update/Delete directly.
package orderbook

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/internal/store"
	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

const (
	orderKeyPrefix  = "ord_"
	oidCounterKey   = "oid_counter"
	statusIdxPrefix = "idx_status_"
	symbolIdxPrefix = "idx_sym_"
)

func orderKey(oid string) string             { return orderKeyPrefix + oid }
func statusIndexKey(s xchange.Status) string { return statusIdxPrefix + string(s) }
func symbolIndexKey(sym string) string       { return symbolIdxPrefix + sym }

// allowedTransitions encodes the state graph in spec §3. A transition not
// present here is illegal and must fail loudly (§5).
var allowedTransitions = map[xchange.Status]map[xchange.Status]bool{
	xchange.StatusNew: {
		xchange.StatusFilled:            true,
		xchange.StatusPartiallyFilled:   true,
		xchange.StatusPartiallyCanceled: true,
		xchange.StatusCanceled:          true,
		xchange.StatusExpired:           true,
		xchange.StatusRejected:          true,
	},
	xchange.StatusPartiallyFilled: {
		xchange.StatusFilled:            true,
		xchange.StatusPartiallyCanceled: true,
		xchange.StatusCanceled:          true,
		xchange.StatusExpired:           true,
	},
}

func canTransition(from, to xchange.Status) bool {
	if from == to {
		return true
	}
	m, ok := allowedTransitions[from]
	return ok && m[to]
}

// Orderbook is the store-backed order ledger.
type Orderbook struct {
	store *store.Store
}

// New builds an Orderbook over store.
func New(s *store.Store) *Orderbook {
	return &Orderbook{store: s}
}

// Create mints an oid, persists the record with status=new (or whatever
// status the caller already set, e.g. rejected), and indexes it.
func (ob *Orderbook) Create(ctx context.Context, o xchange.Order) (xchange.Order, error) {
	n, err := ob.store.NextID(ctx, oidCounterKey)
	if err != nil {
		return xchange.Order{}, fmt.Errorf("create order: %w", err)
	}
	o.OID = "o" + strconv.FormatInt(n, 10)
	now := time.Now()
	o.TsCreate = now
	o.TsUpdate = now
	if o.Status.Terminal() {
		o.TsFinal = now
	}

	if err := ob.store.HSet(ctx, orderKey(o.OID), toFields(o)); err != nil {
		return xchange.Order{}, fmt.Errorf("create order %s: %w", o.OID, err)
	}
	if err := ob.index(ctx, o); err != nil {
		return xchange.Order{}, fmt.Errorf("index order %s: %w", o.OID, err)
	}
	return o, nil
}

// Get fetches one order. NotFound if absent.
func (ob *Orderbook) Get(ctx context.Context, oid string) (xchange.Order, error) {
	fields, err := ob.store.HGetAll(ctx, orderKey(oid))
	if err != nil {
		return xchange.Order{}, fmt.Errorf("get order %s: %w", oid, err)
	}
	if len(fields) == 0 {
		return xchange.Order{}, fmt.Errorf("order %s: %w", oid, xerr.NotFound)
	}
	return fromFields(oid, fields), nil
}

// List returns orders matching filter, most recent ts_update first when
// Tail > 0 truncates to that many results.
func (ob *Orderbook) List(ctx context.Context, filter xchange.ListFilter) ([]xchange.Order, error) {
	oids, err := ob.candidateOIDs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]xchange.Order, 0, len(oids))
	for _, oid := range oids {
		o, err := ob.Get(ctx, oid)
		if err != nil {
			if xerr.Is(err, xerr.NotFound) {
				continue // index/row race: order pruned between index read and fetch
			}
			return nil, fmt.Errorf("list orders: %w", err)
		}
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		if filter.Side != "" && o.Side != filter.Side {
			continue
		}
		orders = append(orders, o)
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].TsUpdate.After(orders[j].TsUpdate)
	})

	if filter.Tail > 0 && len(orders) > filter.Tail {
		orders = orders[:filter.Tail]
	}
	return orders, nil
}

// candidateOIDs picks the status index when filter.Status is set, else the
// symbol index when filter.Symbol is set, else every order key. Each path
// enumerates keys with a prefix SCAN, which walks the whole keyspace: a
// filter reduces the records fetched, not the keys scanned, so listing cost
// grows with the total number of keys in the store.
func (ob *Orderbook) candidateOIDs(ctx context.Context, filter xchange.ListFilter) ([]string, error) {
	switch {
	case filter.Status != "":
		prefix := statusIndexKey(filter.Status) + "_"
		keys, err := ob.store.KeysWithPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		return trimPrefix(keys, prefix), nil
	case filter.Symbol != "":
		prefix := symbolIndexKey(filter.Symbol) + "_"
		keys, err := ob.store.KeysWithPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		return trimPrefix(keys, prefix), nil
	default:
		keys, err := ob.store.KeysWithPrefix(ctx, orderKeyPrefix)
		if err != nil {
			return nil, err
		}
		oids := make([]string, len(keys))
		for i, k := range keys {
			oids[i] = k[len(orderKeyPrefix):]
		}
		return oids, nil
	}
}

// Update applies mutator to the current record under oid's advisory lock,
// rejecting any resulting status that violates the transition graph.
func (ob *Orderbook) Update(ctx context.Context, oid string, mutator func(*xchange.Order) error) (xchange.Order, error) {
	var result xchange.Order
	err := ob.store.WithLock(ctx, orderKey(oid), func(ctx context.Context) error {
		o, err := ob.updateLocked(ctx, oid, mutator)
		result = o
		return err
	})
	if err != nil {
		return xchange.Order{}, fmt.Errorf("update order %s: %w", oid, err)
	}
	return result, nil
}

// WithOrderLock holds oid's advisory lock for the duration of fn. It lets
// the Engine serialize a multi-step sequence — sleep, re-read, sample,
// settle, transition — as one critical section (§4.6, §5 "per-order lock:
// held for the entirety of a state transition"), calling MutateLocked one
// or more times inside fn without re-acquiring the lock.
func (ob *Orderbook) WithOrderLock(ctx context.Context, oid string, fn func(ctx context.Context) error) error {
	return ob.store.WithLock(ctx, orderKey(oid), fn)
}

// MutateLocked is Update's body without its own locking; callers must
// already hold oid's lock via WithOrderLock.
func (ob *Orderbook) MutateLocked(ctx context.Context, oid string, mutator func(*xchange.Order) error) (xchange.Order, error) {
	return ob.updateLocked(ctx, oid, mutator)
}

func (ob *Orderbook) updateLocked(ctx context.Context, oid string, mutator func(*xchange.Order) error) (xchange.Order, error) {
	current, err := ob.Get(ctx, oid)
	if err != nil {
		return xchange.Order{}, err
	}
	before := current

	if err := mutator(&current); err != nil {
		return xchange.Order{}, err
	}

	if !canTransition(before.Status, current.Status) {
		return xchange.Order{}, fmt.Errorf("order %s: %s -> %s: %w", oid, before.Status, current.Status, xerr.IllegalTransition)
	}

	current.TsUpdate = time.Now()
	if current.Status.Terminal() && !before.Status.Terminal() {
		current.TsFinal = current.TsUpdate
	}

	if err := ob.store.HSet(ctx, orderKey(oid), toFields(current)); err != nil {
		return xchange.Order{}, err
	}
	if before.Status != current.Status {
		if err := ob.reindexStatus(ctx, current, before.Status); err != nil {
			return xchange.Order{}, err
		}
	}
	return current, nil
}

// Delete removes the order record and its index entries.
func (ob *Orderbook) Delete(ctx context.Context, oid string) error {
	o, err := ob.Get(ctx, oid)
	if err != nil {
		if xerr.Is(err, xerr.NotFound) {
			return nil
		}
		return fmt.Errorf("delete order %s: %w", oid, err)
	}
	if err := ob.store.Delete(ctx, statusIndexKey(o.Status)+"_"+oid); err != nil {
		return fmt.Errorf("delete order %s: %w", oid, err)
	}
	if err := ob.store.Delete(ctx, symbolIndexKey(o.Symbol)+"_"+oid); err != nil {
		return fmt.Errorf("delete order %s: %w", oid, err)
	}
	if err := ob.store.Delete(ctx, orderKey(oid)); err != nil {
		return fmt.Errorf("delete order %s: %w", oid, err)
	}
	return nil
}

// ScanOpen returns every order whose status is in the OPEN set.
func (ob *Orderbook) ScanOpen(ctx context.Context) ([]xchange.Order, error) {
	var out []xchange.Order
	for _, s := range []xchange.Status{xchange.StatusNew, xchange.StatusPartiallyFilled} {
		orders, err := ob.List(ctx, xchange.ListFilter{Status: s})
		if err != nil {
			return nil, fmt.Errorf("scan open: %w", err)
		}
		out = append(out, orders...)
	}
	return out, nil
}

// ScanTerminalOlderThan returns every terminal order whose ts_final is
// older than cutoff, for the prune loop (§4.8).
func (ob *Orderbook) ScanTerminalOlderThan(ctx context.Context, cutoff time.Time) ([]xchange.Order, error) {
	terminal := []xchange.Status{
		xchange.StatusFilled,
		xchange.StatusCanceled,
		xchange.StatusPartiallyCanceled,
		xchange.StatusExpired,
		xchange.StatusRejected,
	}
	var out []xchange.Order
	for _, s := range terminal {
		orders, err := ob.List(ctx, xchange.ListFilter{Status: s})
		if err != nil {
			return nil, fmt.Errorf("scan terminal: %w", err)
		}
		for _, o := range orders {
			if o.TsFinal.Before(cutoff) {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (ob *Orderbook) index(ctx context.Context, o xchange.Order) error {
	if err := ob.store.HSet(ctx, statusIndexKey(o.Status)+"_"+o.OID, map[string]string{"oid": o.OID}); err != nil {
		return err
	}
	return ob.store.HSet(ctx, symbolIndexKey(o.Symbol)+"_"+o.OID, map[string]string{"oid": o.OID})
}

func (ob *Orderbook) reindexStatus(ctx context.Context, o xchange.Order, oldStatus xchange.Status) error {
	if err := ob.store.Delete(ctx, statusIndexKey(oldStatus)+"_"+o.OID); err != nil {
		return err
	}
	return ob.store.HSet(ctx, statusIndexKey(o.Status)+"_"+o.OID, map[string]string{"oid": o.OID})
}

func toFields(o xchange.Order) map[string]string {
	fields := map[string]string{
		"oid":             o.OID,
		"symbol":          o.Symbol,
		"side":            string(o.Side),
		"type":            string(o.Type),
		"amount":          o.Amount.String(),
		"limit_price":     o.LimitPrice.String(),
		"ts_create":       formatTime(o.TsCreate),
		"commission_rate": o.CommissionRate.String(),
		"cash_asset":      o.CashAsset,
		"reserved_asset":  o.ReservedAsset,
		"reserved_amount": o.ReservedAmount.String(),
		"status":          string(o.Status),
		"filled":          o.Filled.String(),
		"notional":        o.Notional.String(),
		"fee":             o.Fee.String(),
		"avg_price":       o.AvgPrice.String(),
		"ts_update":       formatTime(o.TsUpdate),
		"cancel_reason":   o.CancelReason,
	}
	if !o.TsFinal.IsZero() {
		fields["ts_final"] = formatTime(o.TsFinal)
	}
	return fields
}

func fromFields(oid string, f map[string]string) xchange.Order {
	return xchange.Order{
		OID:            oid,
		Symbol:         f["symbol"],
		Side:           xchange.Side(f["side"]),
		Type:           xchange.Type(f["type"]),
		Amount:         parseDecimal(f["amount"]),
		LimitPrice:     parseDecimal(f["limit_price"]),
		TsCreate:       parseTime(f["ts_create"]),
		CommissionRate: parseDecimal(f["commission_rate"]),
		CashAsset:      f["cash_asset"],
		ReservedAsset:  f["reserved_asset"],
		ReservedAmount: parseDecimal(f["reserved_amount"]),
		Status:         xchange.Status(f["status"]),
		Filled:         parseDecimal(f["filled"]),
		Notional:       parseDecimal(f["notional"]),
		Fee:            parseDecimal(f["fee"]),
		AvgPrice:       parseDecimal(f["avg_price"]),
		TsUpdate:       parseTime(f["ts_update"]),
		TsFinal:        parseTime(f["ts_final"]),
		CancelReason:   f["cancel_reason"],
	}
}

func trimPrefix(keys []string, prefix string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k[len(prefix):]
	}
	return out
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
