package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeReceipt server-issued result of an executed trade.
// NewCashBalance is the only legitimate source of a post-trade balance.
type TradeReceipt struct {
	Side           Side            `json:"side"`
	AssetID        string          `json:"asset_id,omitempty"`
	HoldingID      string          `json:"holding_id,omitempty"`
	Quantity       int64           `json:"quantity,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Fees           decimal.Decimal `json:"fees"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	NewCashBalance decimal.Decimal `json:"new_cash_balance"`
	// BalanceReported is false when the server omitted the post-trade balance.
	BalanceReported bool      `json:"balance_reported"`
	Reference       string    `json:"reference"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// SellStatus outcome of one holding inside a batch sell.
type SellStatus string

const (
	SellStatusSold         SellStatus = "sold"
	SellStatusFailed       SellStatus = "failed"
	SellStatusNotAttempted SellStatus = "not_attempted"
)

// SellOutcome result for a single holding of a batch.
type SellOutcome struct {
	HoldingID string        `json:"holding_id"`
	Status    SellStatus    `json:"status"`
	Receipt   *TradeReceipt `json:"receipt,omitempty"`
	Err       error         `json:"-"`
}

// BatchSellReport ordered outcomes of a sequential batch sell with accumulated totals.
type BatchSellReport struct {
	Outcomes  []SellOutcome   `json:"outcomes"`
	NetAmount decimal.Decimal `json:"net_amount"`
	Fees      decimal.Decimal `json:"fees"`
}

// Statuses returns outcome statuses in batch order.
func (r *BatchSellReport) Statuses() []SellStatus {
	statuses := make([]SellStatus, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		statuses = append(statuses, o.Status)
	}
	return statuses
}

// SoldCount number of holdings sold.
func (r *BatchSellReport) SoldCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == SellStatusSold {
			n++
		}
	}
	return n
}

// Partial reports whether the batch stopped before selling every holding.
func (r *BatchSellReport) Partial() bool {
	return r.SoldCount() != len(r.Outcomes)
}
