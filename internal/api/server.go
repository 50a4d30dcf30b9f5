// Package api is the HTTP/WebSocket adapter: it translates requests into
// Engine/Portfolio/Orderbook/Market calls and enforces auth, CORS, and rate
// limiting ahead of them (§6). It holds no domain logic of its own.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/didac-crst/mockexchange-api/internal/config"
	"github.com/didac-crst/mockexchange-api/internal/engine"
	"github.com/didac-crst/mockexchange-api/internal/market"
	"github.com/didac-crst/mockexchange-api/internal/orderbook"
	"github.com/didac-crst/mockexchange-api/internal/portfolio"
	"github.com/didac-crst/mockexchange-api/internal/store"
)

// Server runs the HTTP/WS API described in §6.
type Server struct {
	cfg      config.APIConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires every dependency into a router and an *http.Server.
func NewServer(cfg config.APIConfig, eng *engine.Engine, mkt *market.View, mktAdmin *market.Admin, pf *portfolio.Portfolio, ob *orderbook.Orderbook, st *store.Store, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(eng, mkt, mktAdmin, pf, ob, st, hub)

	router := newRouter(cfg, handlers, hub, logger)

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		logger:   logger.With("component", "api-server"),
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func newRouter(cfg config.APIConfig, h *Handlers, hub *Hub, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(logger))
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	bucket := newTokenBucket(cfg.RateLimitBurst, cfg.RateLimitRPS)
	r.Use(rateLimitMiddleware(bucket))

	r.HandleFunc("/admin/healthz", h.Healthz).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(authMiddleware(cfg.APIKey, cfg.DisableAuth))

	protected.HandleFunc("/tickers", h.ListTickers).Methods(http.MethodGet)
	protected.HandleFunc("/tickers/{symbol}", h.GetTicker).Methods(http.MethodGet)
	protected.HandleFunc("/balance", h.GetSnapshotBalance).Methods(http.MethodGet)
	protected.HandleFunc("/balance/{asset}", h.GetBalance).Methods(http.MethodGet)
	protected.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	protected.HandleFunc("/orders/{oid}", h.GetOrder).Methods(http.MethodGet)
	protected.HandleFunc("/orders", h.PlaceOrder).Methods(http.MethodPost)
	protected.HandleFunc("/orders/can_execute", h.CanExecute).Methods(http.MethodPost)
	protected.HandleFunc("/orders/{oid}/cancel", h.CancelOrder).Methods(http.MethodPost)
	protected.HandleFunc("/overview/assets", h.GetOverviewAssets).Methods(http.MethodGet)
	protected.HandleFunc("/admin/tickers/{symbol}/price", h.AdminForcePrice).Methods(http.MethodPatch)
	protected.HandleFunc("/admin/balance/{asset}", h.AdminSetBalance).Methods(http.MethodPatch)
	protected.HandleFunc("/admin/fund", h.AdminFund).Methods(http.MethodPost)
	protected.HandleFunc("/admin/data", h.AdminWipeData).Methods(http.MethodDelete)

	protected.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		upgrader := websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				origin := req.Header.Get("Origin")
				return origin == "" || isOriginAllowed(origin, cfg.AllowedOrigins, req.Host)
			},
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "err", err)
			return
		}
		newWSClient(hub, conn)
	}).Methods(http.MethodGet)

	return r
}

// Start runs the hub and blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down within a bounded timeout.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
