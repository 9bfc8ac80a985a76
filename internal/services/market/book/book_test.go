package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBook_ApplyEvent(t *testing.T) {
	b := New()

	_, ok := b.ApplyEvent(domain.StreamEvent{Type: domain.EventSocialUpdate, BoomID: "b1", NewSocialValue: dec("5")})
	assert.False(t, ok, "unknown asset without total is not created")

	v, ok := b.ApplyEvent(domain.StreamEvent{Type: domain.EventMarketUpdate, BoomID: "b1", NewSocialValue: dec("10"), NewTotalValue: dec("110")})
	require.True(t, ok)
	assert.True(t, v.BaseValue.Equal(decimal.NewFromInt(100)))

	v, ok = b.ApplyEvent(domain.StreamEvent{Type: domain.EventSocialUpdate, BoomID: "b1", NewSocialValue: dec("25")})
	require.True(t, ok)
	assert.True(t, v.TotalValue.Equal(decimal.NewFromInt(125)))

	stored, ok := b.Get("b1")
	require.True(t, ok)
	assert.Equal(t, v, stored)

	_, ok = b.ApplyEvent(domain.StreamEvent{Type: domain.EventUserNotification, BoomID: "b1", NewTotalValue: dec("1")})
	assert.False(t, ok)
	stored, _ = b.Get("b1")
	assert.True(t, stored.TotalValue.Equal(decimal.NewFromInt(125)), "notification leaves the book alone")
}
