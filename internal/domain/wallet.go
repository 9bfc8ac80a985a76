package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncReason tags what triggered a wallet update.
type SyncReason string

const (
	ReasonBootstrap          SyncReason = "bootstrap"
	ReasonPoll               SyncReason = "poll"
	ReasonPurchase           SyncReason = "purchase"
	ReasonSale               SyncReason = "sale"
	ReasonPostTrade          SyncReason = "post_trade"
	ReasonUserRefresh        SyncReason = "user_refresh"
	ReasonStreamInvalidation SyncReason = "stream_invalidation"
	ReasonStreamBalance      SyncReason = "stream_balance"
	ReasonRestored           SyncReason = "restored"
)

// String returns the string representation.
func (r SyncReason) String() string {
	return string(r)
}

// WalletSnapshot last known wallet state as reported by the server.
// VirtualBalance is informational and never part of UsableBalance.
type WalletSnapshot struct {
	CashBalance     decimal.Decimal `json:"cash_balance"`
	VirtualBalance  decimal.Decimal `json:"virtual_balance"`
	UsableBalance   decimal.Decimal `json:"usable_balance"`
	AppliedSequence uint64          `json:"applied_sequence"`
	AppliedAt       time.Time       `json:"applied_at"`
	Reason          SyncReason      `json:"reason"`
	// Stale is set on a snapshot restored from disk until a live value lands.
	Stale bool `json:"stale,omitempty"`
}

// WalletUpdate a candidate write to the wallet snapshot.
// Sequence must be taken from the reconciler when the triggering request was issued.
type WalletUpdate struct {
	Sequence uint64
	Reason   SyncReason
	Cash     decimal.Decimal
	// Virtual and Usable are optional; nil keeps the previous value.
	Virtual *decimal.Decimal
	Usable  *decimal.Decimal
}

// WalletSnapshotRecord bundles a snapshot with its storage index.
type WalletSnapshotRecord struct {
	Index    uint64
	Snapshot WalletSnapshot
}
