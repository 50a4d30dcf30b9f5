package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/didac-crst/mockexchange-api/internal/config"
)

type fakeEngine struct {
	ticks  atomic.Int32
	prunes atomic.Int32
}

func (f *fakeEngine) RunTick(ctx context.Context) error {
	f.ticks.Add(1)
	return nil
}

func (f *fakeEngine) Prune(ctx context.Context) error {
	f.prunes.Add(1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTickLoopStopsOnCancel(t *testing.T) {
	t.Parallel()
	fe := &fakeEngine{}
	cfg := config.SchedulerConfig{TickLoopSec: 1, PruneEveryMin: 1}
	// Intervals are whole seconds/minutes, too long to wait out here, so
	// this calls runTickLoop directly instead of going through Run.
	s := New(cfg, fe, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.runTickLoop(ctx)
		close(done)
	}()

	// runTickLoop waits a full TickInterval before its first tick; cancel
	// promptly and assert it exits cleanly.
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick loop did not stop after context cancellation")
	}
}

func TestRunSkipsPruneLoopWhenDisabled(t *testing.T) {
	t.Parallel()
	fe := &fakeEngine{}
	cfg := config.SchedulerConfig{TickLoopSec: 3600, PruneEveryMin: 0}
	s := New(cfg, fe, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation with prune loop disabled")
	}
	if fe.prunes.Load() != 0 {
		t.Errorf("prune should never run when PruneEveryMin=0, got %d calls", fe.prunes.Load())
	}
}
