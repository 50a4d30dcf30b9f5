package api

import (
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v8"

	"github.com/didac-crst/mockexchange-api/internal/config"
	"github.com/didac-crst/mockexchange-api/internal/engine"
	"github.com/didac-crst/mockexchange-api/internal/market"
	"github.com/didac-crst/mockexchange-api/internal/orderbook"
	"github.com/didac-crst/mockexchange-api/internal/portfolio"
	"github.com/didac-crst/mockexchange-api/internal/store"
)

func newTestHandlers(t *testing.T) (*Handlers, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	st := store.WrapClient(rdb)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mkt := market.New(st)
	mktAdmin := market.NewAdmin(st)
	pf := portfolio.New(st)
	ob := orderbook.New(st)
	eng := engine.New(config.Default().Exchange, config.Default().Scheduler, mkt, pf, ob, logger, rand.New(rand.NewSource(1)))

	return NewHandlers(eng, mkt, mktAdmin, pf, ob, st, nil), mock
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListOrdersRejectsBadTail(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/orders?tail=-1", nil)
	rec := httptest.NewRecorder()
	h.ListOrders(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPlaceOrderRejectsMalformedBody(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
