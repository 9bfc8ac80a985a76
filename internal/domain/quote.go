package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quote price of a buy or sell for a given quantity, fees included.
// A quote is informational: the realized price is the one on the TradeReceipt.
type Quote struct {
	AssetID     string          `json:"asset_id"`
	Side        Side            `json:"side"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	FeeRate     decimal.Decimal `json:"fee_rate"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Quantity    int64           `json:"quantity"`
	// Estimated is true when the quote was computed locally instead of fetched.
	Estimated bool `json:"estimated"`
}

// String returns a human-readable string representation.
func (q Quote) String() string {
	kind := "live"
	if q.Estimated {
		kind = "estimate"
	}
	return fmt.Sprintf("%s %s x%d unit=%s fee=%s total=%s (%s)",
		q.AssetID, q.Side, q.Quantity, q.UnitPrice.String(), q.FeeAmount.String(), q.TotalAmount.String(), kind)
}

// Respects reports whether the quote does not cross the given total value:
// a buy must be at or above it, a sell at or below it.
func (q Quote) Respects(totalValue decimal.Decimal) bool {
	switch q.Side {
	case SideBuy:
		return q.UnitPrice.GreaterThanOrEqual(totalValue)
	case SideSell:
		return q.UnitPrice.LessThanOrEqual(totalValue)
	default:
		return false
	}
}
