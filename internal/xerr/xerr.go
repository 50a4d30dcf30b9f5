// Package xerr defines the error kinds the core raises (spec §7) as
// sentinel errors. Callers wrap a sentinel with context via fmt.Errorf's
// %w verb and unwrap it with errors.Is at the boundary that needs to branch
// on kind (mainly the API adapter's status-code mapping and the background
// loops' log-and-continue policy).
package xerr

import "errors"

var (
	// UnknownSymbol: no ticker exists for the requested symbol.
	UnknownSymbol = errors.New("unknown symbol")
	// InsufficientFunds: a reservation would drive free balance negative.
	InsufficientFunds = errors.New("insufficient funds")
	// InvalidArgument: non-positive amount, missing limit price, bad side/type.
	InvalidArgument = errors.New("invalid argument")
	// NotFound: order id or asset absent where required.
	NotFound = errors.New("not found")
	// IllegalTransition: state-machine violation. Never user-caused directly;
	// indicates a bug or a concurrent race. Callers log this loudly.
	IllegalTransition = errors.New("illegal state transition")
	// StaleTicker: price older than the configured staleness horizon.
	StaleTicker = errors.New("stale ticker")
	// Transient: store unavailable; retried with bounded backoff by the
	// store adapter before ever reaching this far.
	Transient = errors.New("transient store error")
	// Fatal: corrupt record or invariant violation.
	Fatal = errors.New("fatal error")
	// Conflict: optimistic concurrency violation (e.g. lock already held).
	Conflict = errors.New("conflict")
)

// Is reports whether err (or anything it wraps) matches kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
