// mockexchanged is the mock exchange daemon: it wires the store, market
// view, portfolio, orderbook, engine, scheduler, and HTTP/WS adapter
// together, then serves until it receives SIGINT/SIGTERM.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires components, waits for shutdown
//	internal/store             — Redis-protocol adapter: hashes, atomic incr, prefix scan, advisory locks
//	internal/market            — read-only ticker facade, plus the one admin write path (force price)
//	internal/portfolio         — balance ledger: free/used with reserve/release/settle primitives
//	internal/orderbook         — order persistence, status/symbol indexes, state-machine transitions
//	internal/engine            — intake, market execution, limit settlement, cancel/prune, reconciliation
//	internal/scheduler         — tick loop + prune loop as independent goroutines
//	internal/api               — HTTP/WS adapter translating requests into engine calls
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/didac-crst/mockexchange-api/internal/api"
	"github.com/didac-crst/mockexchange-api/internal/config"
	"github.com/didac-crst/mockexchange-api/internal/engine"
	"github.com/didac-crst/mockexchange-api/internal/market"
	"github.com/didac-crst/mockexchange-api/internal/orderbook"
	"github.com/didac-crst/mockexchange-api/internal/portfolio"
	"github.com/didac-crst/mockexchange-api/internal/scheduler"
	"github.com/didac-crst/mockexchange-api/internal/store"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MOCKX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(ctx, cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB)
	cancel()
	if err != nil {
		logger.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	mkt := market.New(st)
	mktAdmin := market.NewAdmin(st)
	pf := portfolio.New(st)
	ob := orderbook.New(st)
	eng := engine.New(cfg.Exchange, cfg.Scheduler, mkt, pf, ob, logger, nil)

	sched := scheduler.New(cfg.Scheduler, eng, logger)
	schedCtx, stopSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	apiServer := api.NewServer(cfg.API, eng, mkt, mktAdmin, pf, ob, st, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server failed", "error", err)
		}
	}()

	logger.Info("mockexchanged started",
		"addr", cfg.API.Addr,
		"cash_asset", cfg.Exchange.CashAsset,
		"tick_loop_sec", cfg.Scheduler.TickLoopSec,
		"prune_every_min", cfg.Scheduler.PruneEveryMin,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
	stopSched()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
