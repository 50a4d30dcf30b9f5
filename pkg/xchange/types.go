// Package xchange defines the shared data structures used across all
// packages of the mock exchange: order/ticker/balance records, enums, and
// the wire field names the HTTP/store adapters agree on. It has no
// dependency on internal packages, so it can be imported by any layer.
package xchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Type is the order execution style.
type Type string

const (
	Market Type = "market"
	Limit  Type = "limit"
)

// Status is the order's position in the state machine (spec §3).
type Status string

const (
	StatusNew                Status = "new"
	StatusFilled              Status = "filled"
	StatusPartiallyFilled     Status = "partially_filled"
	StatusPartiallyCanceled   Status = "partially_canceled"
	StatusCanceled            Status = "canceled"
	StatusExpired             Status = "expired"
	StatusRejected            Status = "rejected"
)

// Open reports whether the status is one of the OPEN states {new, partially_filled}.
func (s Status) Open() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// Terminal reports whether the status is one of the terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusPartiallyCanceled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// ————————————————————————————————————————————————————————————————————————
// Ticker
// ————————————————————————————————————————————————————————————————————————

// Ticker mirrors the external feeder's hash for one symbol (spec §6).
// Only Price and Timestamp are required; when absent, Bid and Ask default to
// Price and BidVolume/AskVolume default to zero.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp float64         `json:"timestamp"` // epoch seconds, fractional allowed
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	BidVolume decimal.Decimal `json:"bidVolume"`
	AskVolume decimal.Decimal `json:"askVolume"`
}

// Age returns how long ago the ticker was written, relative to now.
func (t Ticker) Age(now time.Time) time.Duration {
	ts := time.Unix(0, int64(t.Timestamp*float64(time.Second)))
	return now.Sub(ts)
}

// ————————————————————————————————————————————————————————————————————————
// Balance
// ————————————————————————————————————————————————————————————————————————

// Balance is one asset's free/used row (spec §3).
type Balance struct {
	Asset string          `json:"asset"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
}

// Total returns free+used.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Used)
}

// ————————————————————————————————————————————————————————————————————————
// Order
// ————————————————————————————————————————————————————————————————————————

// Order is the full order record (spec §3). Fields are grouped into
// immutable-on-creation and mutable per the spec's distinction, though Go
// has no way to enforce that split at the type level beyond convention and
// the Orderbook's exclusive-ownership discipline.
type Order struct {
	// Immutable on creation.
	OID            string          `json:"oid"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Type           Type            `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	LimitPrice     decimal.Decimal `json:"limit_price,omitempty"`
	TsCreate       time.Time       `json:"ts_create"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	CashAsset      string          `json:"cash_asset"`

	// Reservation bookkeeping (implementation detail needed to release the
	// correct remainder on cancel/expire/partial-cancel).
	ReservedAsset  string          `json:"reserved_asset"`
	ReservedAmount decimal.Decimal `json:"reserved_amount"`

	// Mutable.
	Status       Status          `json:"status"`
	Filled       decimal.Decimal `json:"filled"`
	Notional     decimal.Decimal `json:"notional"`
	Fee          decimal.Decimal `json:"fee"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	TsUpdate     time.Time       `json:"ts_update"`
	TsFinal      time.Time       `json:"ts_final,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
}

// Remaining returns the unfilled base quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// ListFilter narrows Orderbook.List (spec §4.4).
type ListFilter struct {
	Status Status
	Symbol string
	Side   Side
	Tail   int
}
