package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AssetOverview is one row of the §4.9 reconciliation report: the portfolio's
// authoritative free/used split against the used amount the open orderbook
// alone would imply. They should always agree — Mismatch flags otherwise.
type AssetOverview struct {
	Asset        string          `json:"asset"`
	Free         decimal.Decimal `json:"free"`
	Used         decimal.Decimal `json:"used"`
	ExpectedUsed decimal.Decimal `json:"expected_used"`
	Mismatch     bool            `json:"mismatch"`
}

// OverviewAssets is the production oracle for the conservation invariant
// (§4.3: used(asset) == Σ remaining_reservation(OPEN orders on asset)). It
// recomputes expected_used straight from the open orderbook rather than
// trusting any cached counter, so a drift always shows up here first.
func (e *Engine) OverviewAssets(ctx context.Context) ([]AssetOverview, error) {
	snapshot, err := e.portfolio.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("overview assets: %w", err)
	}

	open, err := e.orderbook.ScanOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("overview assets: %w", err)
	}

	expected := make(map[string]decimal.Decimal, len(snapshot))
	for _, o := range open {
		remainder := o.ReservedAmount.Sub(o.Notional.Add(o.Fee))
		if remainder.IsNegative() {
			remainder = decimal.Zero
		}
		expected[o.ReservedAsset] = expected[o.ReservedAsset].Add(remainder)
	}

	assets := make(map[string]struct{}, len(snapshot)+len(expected))
	for asset := range snapshot {
		assets[asset] = struct{}{}
	}
	for asset := range expected {
		assets[asset] = struct{}{}
	}

	out := make([]AssetOverview, 0, len(assets))
	for asset := range assets {
		row := snapshot[asset]
		row.Asset = asset
		want := expected[asset]
		out = append(out, AssetOverview{
			Asset:        asset,
			Free:         row.Free,
			Used:         row.Used,
			ExpectedUsed: want,
			Mismatch:     !row.Used.Equal(want),
		})
	}
	return out, nil
}
