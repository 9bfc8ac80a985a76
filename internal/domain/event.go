package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType kind of push stream event.
type EventType string

const (
	EventMarketUpdate      EventType = "market_update"
	EventSocialUpdate      EventType = "social_update"
	EventStateInvalidation EventType = "state_invalidation"
	EventUserNotification  EventType = "user_notification"
)

// IsValid checks if the EventType value is known.
func (t EventType) IsValid() bool {
	switch t {
	case EventMarketUpdate, EventSocialUpdate, EventStateInvalidation, EventUserNotification:
		return true
	}
	return false
}

// StreamEvent normalized push stream event.
type StreamEvent struct {
	Type           EventType
	ID             string
	BoomID         string
	NewSocialValue *decimal.Decimal
	NewTotalValue  *decimal.Decimal
	Delta          *decimal.Decimal
	Action         string
	SocialEvent    string
	// NewCashBalance is set when the server attaches the caller's balance to the event.
	NewCashBalance *decimal.Decimal
	// Version is the server sequence of the logical stream, zero when not provided.
	Version    uint64
	Message    string
	ReceivedAt time.Time
}

// StreamKey identifies the logical stream the event belongs to for deduplication.
func (e StreamEvent) StreamKey() string {
	switch e.Type {
	case EventMarketUpdate, EventSocialUpdate:
		return string(e.Type) + ":" + e.BoomID
	default:
		return string(e.Type)
	}
}
