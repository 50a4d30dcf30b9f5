package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// minFillFloor is the lower clip of the fill-ratio sampler: a market order
// always fills a strictly positive amount, never exactly zero.
const minFillFloor = 1e-6

// sampleFillRatio draws r from a distribution with mean 1 and stddev sigma,
// clipped to (0, 1] (§4.6 step 3). sigma=0 always returns 1 (S9's
// deterministic case). The normal draw comes from e.rng so tests can seed
// it for reproducible partial fills (S6).
func (e *Engine) sampleFillRatio(sigma float64) decimal.Decimal {
	if sigma <= 0 {
		return decimal.NewFromInt(1)
	}
	r := 1 + sigma*e.rng.NormFloat64()
	if r > 1 {
		r = 1
	}
	if r < minFillFloor {
		r = minFillFloor
	}
	return decimal.NewFromFloat(r)
}

// sampleLatency draws a uniform duration in [min, max] seconds (§4.6 step 1).
func (e *Engine) sampleLatency(minSeconds, maxSeconds float64) time.Duration {
	if maxSeconds <= minSeconds {
		return time.Duration(minSeconds * float64(time.Second))
	}
	span := maxSeconds - minSeconds
	seconds := minSeconds + e.rng.Float64()*span
	return time.Duration(seconds * float64(time.Second))
}
