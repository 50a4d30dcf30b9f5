package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/didac-crst/mockexchange-api/pkg/xchange"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to xchange.Status
		want     bool
	}{
		{xchange.StatusNew, xchange.StatusFilled, true},
		{xchange.StatusNew, xchange.StatusPartiallyFilled, true},
		{xchange.StatusNew, xchange.StatusRejected, true},
		{xchange.StatusPartiallyFilled, xchange.StatusFilled, true},
		{xchange.StatusPartiallyFilled, xchange.StatusNew, false},
		{xchange.StatusFilled, xchange.StatusCanceled, false},
		{xchange.StatusCanceled, xchange.StatusFilled, false},
		{xchange.StatusNew, xchange.StatusNew, true},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestToFieldsFromFieldsRoundTrip(t *testing.T) {
	o := xchange.Order{
		OID:            "o1",
		Symbol:         "BTC/USDT",
		Side:           xchange.Buy,
		Type:           xchange.Limit,
		Amount:         decimal.NewFromFloat(0.5),
		LimitPrice:     decimal.NewFromInt(50000),
		CommissionRate: decimal.NewFromFloat(0.00075),
		CashAsset:      "USDT",
		ReservedAsset:  "USDT",
		ReservedAmount: decimal.NewFromFloat(25018.75),
		Status:         xchange.StatusNew,
		Filled:         decimal.Zero,
	}

	fields := toFields(o)
	got := fromFields(o.OID, fields)

	if got.Symbol != o.Symbol || got.Side != o.Side || got.Type != o.Type {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Amount.Equal(o.Amount) {
		t.Errorf("Amount = %s, want %s", got.Amount, o.Amount)
	}
	if !got.ReservedAmount.Equal(o.ReservedAmount) {
		t.Errorf("ReservedAmount = %s, want %s", got.ReservedAmount, o.ReservedAmount)
	}
	if got.Status != o.Status {
		t.Errorf("Status = %s, want %s", got.Status, o.Status)
	}
}
