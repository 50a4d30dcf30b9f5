// Package scheduler drives the Engine's two background loops: the tick loop
// that settles limit orders against the latest price (§4.7) and the prune
// loop that expires stale open orders and deletes old terminal ones (§4.8).
// Both run as independent goroutines under one context; canceling it stops
// both cleanly.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/didac-crst/mockexchange-api/internal/config"
)

// engine is the subset of *engine.Engine the scheduler drives. Declared
// locally so scheduler has no import-time dependency on the engine package
// beyond this interface, keeping the two independently testable.
type engine interface {
	RunTick(ctx context.Context) error
	Prune(ctx context.Context) error
}

// Scheduler owns the tick and prune tickers.
type Scheduler struct {
	cfg    config.SchedulerConfig
	engine engine
	logger *slog.Logger
}

// New builds a Scheduler over engine.
func New(cfg config.SchedulerConfig, eng engine, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: eng,
		logger: logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is canceled, running the tick loop and, unless
// PruneEveryMin is 0, the prune loop, each on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, 2)

	go func() {
		s.runTickLoop(ctx)
		done <- struct{}{}
	}()

	if s.cfg.PruneEveryMin > 0 {
		go func() {
			s.runPruneLoop(ctx)
			done <- struct{}{}
		}()
		<-done
		<-done
		return
	}
	s.logger.Info("prune loop disabled", "prune_every_min", s.cfg.PruneEveryMin)
	<-done
}

func (s *Scheduler) runTickLoop(ctx context.Context) {
	interval := s.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("tick loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tick loop stopped")
			return
		case <-ticker.C:
			if err := s.engine.RunTick(ctx); err != nil {
				s.logger.Error("tick failed", "err", err)
			}
		}
	}
}

func (s *Scheduler) runPruneLoop(ctx context.Context) {
	interval := s.cfg.PruneInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("prune loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("prune loop stopped")
			return
		case <-ticker.C:
			if err := s.engine.Prune(ctx); err != nil {
				s.logger.Error("prune failed", "err", err)
			}
		}
	}
}
