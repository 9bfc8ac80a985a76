// Package valuation holds the pure pricing functions of a BOOM: capitalization
// progress, milestones, fee spread and locally estimated quotes.
package valuation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/boomkit/internal/domain"
)

// PlatformFeeRate fixed platform fee used for display when no live quote exists.
var PlatformFeeRate = decimal.NewFromFloat(0.05)

var hundred = decimal.NewFromInt(100)

// Engine computes valuation figures from a fixed set of capitalization constants.
// All methods are side-effect free.
type Engine struct {
	c domain.CapitalizationConstants
}

// NewEngine creates an Engine. Non-positive palier parameters fall back to defaults.
func NewEngine(c domain.CapitalizationConstants) *Engine {
	def := domain.DefaultCapitalizationConstants()
	if c.PalierThreshold.LessThanOrEqual(decimal.Zero) {
		c.PalierThreshold = def.PalierThreshold
	}
	if c.PalierCount <= 0 {
		c.PalierCount = def.PalierCount
	}
	if c.Ceil.IsZero() {
		c.Ceil = def.Ceil
	}
	if c.Ceil.LessThan(c.Floor) {
		c.Floor, c.Ceil = c.Ceil, c.Floor
	}
	return &Engine{c: c}
}

// Constants returns the constants the engine was built with.
func (e *Engine) Constants() domain.CapitalizationConstants {
	return e.c
}

// CapProgress returns effectiveCap / (threshold * count) clamped to [0, 1].
func (e *Engine) CapProgress(effectiveCap decimal.Decimal) float64 {
	final := e.c.FinalMilestone()
	if effectiveCap.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	if effectiveCap.GreaterThanOrEqual(final) {
		return 1
	}
	return effectiveCap.Div(final).InexactFloat64()
}

// NextMilestone returns the next unreached multiple of the palier threshold.
// Once progress reaches 1 the final milestone is returned unchanged.
func (e *Engine) NextMilestone(progress float64) decimal.Decimal {
	final := e.c.FinalMilestone()
	if progress >= 1 {
		return final
	}
	if progress < 0 || math.IsNaN(progress) {
		progress = 0
	}

	reached := decimal.NewFromFloat(progress).Mul(decimal.NewFromInt(e.c.PalierCount)).Floor()
	next := reached.Add(decimal.NewFromInt(1)).Mul(e.c.PalierThreshold)
	if next.GreaterThan(final) {
		return final
	}
	return next
}

// MilestoneReached reports whether the final palier is reached.
func (e *Engine) MilestoneReached(progress float64) bool {
	return progress >= 1
}

// UnitsCrossed number of whole thresholds crossed by an effective capitalization.
func (e *Engine) UnitsCrossed(effectiveCap decimal.Decimal) int64 {
	if effectiveCap.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return effectiveCap.Div(e.c.PalierThreshold).Floor().IntPart()
}

// MarginalImpact per-trade price impact rate: the micro impact rate is applied
// once per threshold crossing, so it is shared among all crossed units.
func (e *Engine) MarginalImpact(units int64) decimal.Decimal {
	if units < 0 {
		units = 0
	}
	return e.c.MicroImpactRate.Div(decimal.NewFromInt(units + 1))
}

// DescribeMicroInfluence describes how diluted the price impact of a single trade is.
func (e *Engine) DescribeMicroInfluence(units int64) string {
	if units < 0 {
		units = 0
	}

	var tier string
	switch {
	case units == 0:
		tier = "Full impact"
	case units == 1:
		tier = "Strong impact"
	case units <= 3:
		tier = "Moderate impact"
	default:
		tier = "Diluted impact"
	}

	pct := e.MarginalImpact(units).Mul(hundred).Round(4)
	return fmt.Sprintf("%s: %d threshold(s) crossed, one buy or sell moves the social value by about %s%%",
		tier, units, pct.String())
}

// FeeBreakdown buy and sell fee percentages shown next to an asset.
type FeeBreakdown struct {
	BuyPercent  decimal.Decimal
	SellPercent decimal.Decimal
	// Estimated marks the platform-rate fallback; it must never authorize money movement.
	Estimated bool
}

// FeePercents derives fee percentages from live quotes around the asset's
// reference price (its total value). A side without a live quote uses the
// platform rate and marks the result as estimated.
func (e *Engine) FeePercents(v domain.AssetValuation, buy, sell *domain.Quote) FeeBreakdown {
	fallback := PlatformFeeRate.Mul(hundred)
	out := FeeBreakdown{BuyPercent: fallback, SellPercent: fallback}

	ref := v.TotalValue
	if ref.LessThanOrEqual(decimal.Zero) {
		ref = v.BaseValue
	}
	if ref.LessThanOrEqual(decimal.Zero) {
		out.Estimated = true
		return out
	}

	if live(buy) {
		out.BuyPercent = nonNegative(buy.UnitPrice.Sub(ref).Div(ref).Mul(hundred)).Round(4)
	} else {
		out.Estimated = true
	}
	if live(sell) {
		out.SellPercent = nonNegative(ref.Sub(sell.UnitPrice).Div(ref).Mul(hundred)).Round(4)
	} else {
		out.Estimated = true
	}

	return out
}

// EstimateQuote computes a local quote around total value. The spread rate is
// the nominal spread clamped to [Floor, Ceil]; buy prices round up and sell
// prices round down so the quote never crosses total value.
func (e *Engine) EstimateQuote(v domain.AssetValuation, side domain.Side, quantity int64) domain.Quote {
	if quantity < 1 {
		quantity = 1
	}
	rate := e.spreadRate()
	one := decimal.NewFromInt(1)
	qty := decimal.NewFromInt(quantity)

	var unit decimal.Decimal
	switch side {
	case domain.SideSell:
		unit = nonNegative(v.TotalValue.Mul(one.Sub(rate))).RoundFloor(4)
	default:
		side = domain.SideBuy
		unit = v.TotalValue.Mul(one.Add(rate)).RoundCeil(4)
	}

	feePerUnit := unit.Sub(v.TotalValue).Abs()
	return domain.Quote{
		AssetID:     v.ID,
		Side:        side,
		UnitPrice:   unit,
		FeeRate:     rate,
		FeeAmount:   feePerUnit.Mul(qty),
		TotalAmount: unit.Mul(qty),
		Quantity:    quantity,
		Estimated:   true,
	}
}

func (e *Engine) spreadRate() decimal.Decimal {
	rate := e.c.Spread
	if rate.LessThan(e.c.Floor) {
		rate = e.c.Floor
	}
	if rate.GreaterThan(e.c.Ceil) {
		rate = e.c.Ceil
	}
	return nonNegative(rate)
}

func live(q *domain.Quote) bool {
	return q != nil && !q.Estimated && q.UnitPrice.GreaterThan(decimal.Zero)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
