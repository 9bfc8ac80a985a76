package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNewAssetValuation(t *testing.T) {
	tests := []struct {
		name                string
		base, social, total *decimal.Decimal
		wantBase, wantTotal string
	}{
		{name: "base derived from total", base: nil, social: dec("30"), total: dec("100"), wantBase: "70", wantTotal: "100"},
		{name: "total derived from base", base: dec("70"), social: dec("30"), total: nil, wantBase: "70", wantTotal: "100"},
		{name: "server total kept on disagreement", base: dec("80"), social: dec("30"), total: dec("100"), wantBase: "80", wantTotal: "100"},
		{name: "negative clamped", base: nil, social: dec("150"), total: dec("100"), wantBase: "0", wantTotal: "100"},
		{name: "negative total clamped", base: nil, social: dec("0"), total: dec("-5"), wantBase: "0", wantTotal: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewAssetValuation("b1", tt.base, tt.social, tt.total)
			assert.True(t, v.BaseValue.Equal(decimal.RequireFromString(tt.wantBase)), "base %s", v.BaseValue)
			assert.True(t, v.TotalValue.Equal(decimal.RequireFromString(tt.wantTotal)), "total %s", v.TotalValue)
		})
	}

	assert.True(t, NewAssetValuation("b", nil, dec("30"), dec("100")).Consistent())
	assert.False(t, NewAssetValuation("b", dec("80"), dec("30"), dec("100")).Consistent())
}

func TestAssetValuation_WithSocialUpdate(t *testing.T) {
	v := NewAssetValuation("b1", dec("70"), dec("30"), nil)

	next := v.WithSocialUpdate(dec("45"), dec("115"))
	assert.True(t, next.SocialValue.Equal(decimal.NewFromInt(45)))
	assert.True(t, next.TotalValue.Equal(decimal.NewFromInt(115)))
	assert.True(t, next.BaseValue.Equal(decimal.NewFromInt(70)))

	socialOnly := v.WithSocialUpdate(dec("40"), nil)
	assert.True(t, socialOnly.TotalValue.Equal(decimal.NewFromInt(110)))
	assert.True(t, v.TotalValue.Equal(decimal.NewFromInt(100)), "original must stay untouched")
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		expected string
	}{
		{in: "0", expected: "0.00"},
		{in: "1234.5", currency: "XOF", expected: "1,234.50 XOF"},
		{in: "1234567.12345", expected: "1,234,567.1235"},
		{in: "12.345", expected: "12.345"},
		{in: "-900", expected: "-900.00"},
		{in: "100", expected: "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatAmount(decimal.RequireFromString(tt.in), tt.currency))
		})
	}
}

func TestTradeState_CanTransition(t *testing.T) {
	assert.True(t, TradeStateIdle.CanTransition(TradeStateSubmitting))
	assert.True(t, TradeStateSubmitting.CanTransition(TradeStateSucceeded))
	assert.True(t, TradeStateSubmitting.CanTransition(TradeStateFailed))
	assert.True(t, TradeStateFailed.CanTransition(TradeStateIdle))
	assert.False(t, TradeStateIdle.CanTransition(TradeStateSucceeded))
	assert.False(t, TradeStateSubmitting.CanTransition(TradeStateSubmitting))
	assert.Equal(t, "submitting", TradeStateSubmitting.String())
}
