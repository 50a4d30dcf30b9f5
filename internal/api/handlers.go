package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/didac-crst/mockexchange-api/internal/engine"
	"github.com/didac-crst/mockexchange-api/internal/market"
	"github.com/didac-crst/mockexchange-api/internal/orderbook"
	"github.com/didac-crst/mockexchange-api/internal/portfolio"
	"github.com/didac-crst/mockexchange-api/internal/store"
	"github.com/didac-crst/mockexchange-api/internal/xerr"
	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

// Handlers holds every dependency the HTTP adapter needs to translate
// requests into Engine/Portfolio/Orderbook/Market calls (§6).
type Handlers struct {
	engine    *engine.Engine
	market    *market.View
	admin     *market.Admin
	portfolio *portfolio.Portfolio
	orderbook *orderbook.Orderbook
	store     *store.Store
	hub       *Hub
}

// NewHandlers builds a Handlers instance.
func NewHandlers(eng *engine.Engine, mkt *market.View, mktAdmin *market.Admin, pf *portfolio.Portfolio, ob *orderbook.Orderbook, st *store.Store, hub *Hub) *Handlers {
	return &Handlers{engine: eng, market: mkt, admin: mktAdmin, portfolio: pf, orderbook: ob, store: st, hub: hub}
}

// --- read-only market/balance/order surface -------------------------------

func (h *Handlers) ListTickers(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.market.ListSymbols(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

func (h *Handlers) GetTicker(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	t, err := h.market.Quote(r.Context(), symbol)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) GetSnapshotBalance(w http.ResponseWriter, r *http.Request) {
	snap, err := h.portfolio.Snapshot(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	row, err := h.portfolio.Get(r.Context(), asset)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := xchange.ListFilter{
		Status: xchange.Status(q.Get("status")),
		Symbol: q.Get("symbol"),
		Side:   xchange.Side(q.Get("side")),
	}
	if tailStr := q.Get("tail"); tailStr != "" {
		tail, err := strconv.Atoi(tailStr)
		if err != nil || tail < 0 {
			writeError(w, http.StatusBadRequest, "tail must be a non-negative integer")
			return
		}
		filter.Tail = tail
	}

	orders, err := h.orderbook.List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	oid := mux.Vars(r)["oid"]
	o, err := h.orderbook.Get(r.Context(), oid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOverviewAssets(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.OverviewAssets(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// --- order placement --------------------------------------------------

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	order, err := h.engine.Place(r.Context(), req.Symbol, xchange.Side(req.Side), xchange.Type(req.Type), req.Amount, req.LimitPrice)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h.hub != nil {
		h.hub.BroadcastOrder(order)
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handlers) CanExecute(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ok, reason, err := h.engine.CanExecute(r.Context(), req.Symbol, xchange.Side(req.Side), xchange.Type(req.Type), req.Amount, req.LimitPrice)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, canExecuteResponse{OK: ok, Reason: reason})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	oid := mux.Vars(r)["oid"]
	order, err := h.engine.Cancel(r.Context(), oid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h.hub != nil {
		h.hub.BroadcastOrder(order)
	}
	writeJSON(w, http.StatusOK, order)
}

// --- admin surface ------------------------------------------------------

func (h *Handlers) AdminForcePrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	var req forcePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !req.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "price must be > 0")
		return
	}
	if err := h.admin.ForcePrice(r.Context(), symbol, req.Price); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *Handlers) AdminSetBalance(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	var req setBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.portfolio.Set(r.Context(), asset, req.Free, req.Used); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *Handlers) AdminFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.portfolio.Fund(r.Context(), req.Asset, req.Amount); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *Handlers) AdminWipeData(w http.ResponseWriter, r *http.Request) {
	if err := h.store.FlushAll(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// writeStoreError maps an xerr sentinel to the HTTP status §7 implies.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case xerr.Is(err, xerr.NotFound), xerr.Is(err, xerr.UnknownSymbol):
		writeError(w, http.StatusNotFound, err.Error())
	case xerr.Is(err, xerr.InvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case xerr.Is(err, xerr.InsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case xerr.Is(err, xerr.Conflict):
		writeError(w, http.StatusConflict, err.Error())
	case xerr.Is(err, xerr.StaleTicker):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
