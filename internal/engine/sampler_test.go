package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSampleFillRatioZeroSigmaAlwaysFull(t *testing.T) {
	e := &Engine{rng: rand.New(rand.NewSource(1))}
	r := e.sampleFillRatio(0)
	require.True(t, r.Equal(decimal.NewFromInt(1)))
}

func TestSampleFillRatioClippedToUnitInterval(t *testing.T) {
	e := &Engine{rng: rand.New(rand.NewSource(7))}
	for i := 0; i < 1000; i++ {
		r := e.sampleFillRatio(0.5)
		require.True(t, r.GreaterThan(decimal.Zero))
		require.True(t, r.LessThanOrEqual(decimal.NewFromInt(1)))
	}
}

func TestSampleFillRatioDeterministicForSeed(t *testing.T) {
	a := &Engine{rng: rand.New(rand.NewSource(42))}
	b := &Engine{rng: rand.New(rand.NewSource(42))}
	require.True(t, a.sampleFillRatio(0.1).Equal(b.sampleFillRatio(0.1)))
}

func TestSampleLatencyWithinBounds(t *testing.T) {
	e := &Engine{rng: rand.New(rand.NewSource(3))}
	for i := 0; i < 1000; i++ {
		d := e.sampleLatency(3, 5)
		require.GreaterOrEqual(t, d, 3*time.Second)
		require.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestSampleLatencyDegenerateRange(t *testing.T) {
	e := &Engine{rng: rand.New(rand.NewSource(3))}
	d := e.sampleLatency(2, 2)
	require.Equal(t, 2*time.Second, d)
}
